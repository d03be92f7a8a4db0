package errors

// Error codes, grouped by origin.
const (
	// EngineError (1000-1099)
	ErrEngineNotFound      = 1000
	ErrEngineFetchFailed   = 1001
	ErrEngineVerifyFailed  = 1002
	ErrEngineWorkdirFailed = 1003
	ErrEngineNotLoaded     = 1004

	// StagingError (1100-1199)
	ErrSourceUnreadable   = 1100
	ErrStagingWriteFailed = 1101

	// TranscodingError (1200-1299)
	ErrTranscodeStartFailed = 1200
	ErrTranscodeFailed      = 1201
	ErrTranscodeCanceled    = 1202

	// PlaylistError (1300-1399)
	ErrPlaylistUnreadable = 1300
	ErrNoSegments         = 1301
	ErrSegmentUnreadable  = 1302

	// UploadError (1400-1499)
	ErrUploadRequestFailed  = 1400
	ErrUploadStatus         = 1401
	ErrUploadNoURL          = 1402
	ErrUploadBodyUnreadable = 1403

	// ValidationError (1500-1599)
	ErrInvalidOption   = 1500
	ErrInvalidFileName = 1501
	ErrBusy            = 1502

	// SystemError (1600-1699)
	ErrFileSystem   = 1600
	ErrListenFailed = 1601

	// UnknownError (1900)
	ErrUnknown = 1900
)
