package s3client

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Sentinel errors for S3 failures the caller needs to tell apart. Use
// errors.Is to check them.
var (
	ErrObjectNotFound = errors.New("s3: object not found")
	ErrAccessDenied   = errors.New("s3: access denied")
	ErrInvalidSource  = errors.New("s3: source is not an s3:// URL")
)

// classify maps AWS SDK failures to sentinel errors where a distinct
// meaning exists, and returns the original error otherwise. HeadObject
// reports missing keys with the bare "NotFound" code rather than the
// modeled NoSuchKey type.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return ErrObjectNotFound
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return ErrObjectNotFound
		case "AccessDenied", "Forbidden":
			return ErrAccessDenied
		}
	}
	return err
}
