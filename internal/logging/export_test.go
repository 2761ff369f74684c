package logging

// ConfigureWriters exposes configure with injectable stdout/stderr.
var ConfigureWriters = configure
