package pipeline

// UploadName exports uploadName for testing.
var UploadName = uploadName
