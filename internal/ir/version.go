package ir

// Version is the harvester version reported in the User-Agent header and in
// run records.
const Version = "0.3.0"
