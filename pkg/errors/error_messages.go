package errors

// ErrorMessages holds the standard message for each error code.
var ErrorMessages = map[int]string{
	ErrEngineNotFound:      "Transcoding engine binary not found. Install ffmpeg or configure engine.core_url.",
	ErrEngineFetchFailed:   "Failed to fetch transcoding engine artifact.",
	ErrEngineVerifyFailed:  "Transcoding engine did not respond to a version check.",
	ErrEngineWorkdirFailed: "Failed to prepare engine working storage.",
	ErrEngineNotLoaded:     "Transcoding engine is not loaded.",

	ErrSourceUnreadable:   "Could not read the source file.",
	ErrStagingWriteFailed: "Could not write the source file into engine working storage.",

	ErrTranscodeStartFailed: "Failed to start the transcoding engine.",
	ErrTranscodeFailed:      "Transcoding engine command failed.",
	ErrTranscodeCanceled:    "Transcoding was canceled.",

	ErrPlaylistUnreadable: "Could not read the generated playlist.",
	ErrNoSegments:         "The generated playlist does not reference any segments.",
	ErrSegmentUnreadable:  "Could not read a generated segment.",

	ErrUploadRequestFailed:  "Upload request failed.",
	ErrUploadStatus:         "Upload endpoint returned an error status.",
	ErrUploadNoURL:          "Could not extract URL from response",
	ErrUploadBodyUnreadable: "Could not read upload response.",

	ErrInvalidOption:   "Invalid option.",
	ErrInvalidFileName: "Invalid file name for engine working storage.",
	ErrBusy:            "Another conversion is already in progress.",

	ErrFileSystem:   "File system operation failed.",
	ErrListenFailed: "The HTTP server could not listen on its address.",

	ErrUnknown: "Unknown error occurred",
}

// GetErrorMessage returns the standard message for an error code.
func GetErrorMessage(code int) string {
	if msg, ok := ErrorMessages[code]; ok {
		return msg
	}
	return ErrorMessages[ErrUnknown]
}
