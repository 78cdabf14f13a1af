package main

// Version information - can be overridden at build time with -ldflags
var version = "dev"
