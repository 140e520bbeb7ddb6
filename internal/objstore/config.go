package objstore

// S3Config configures the S3-compatible backend. Mirrors the teacher's
// blob.S3BlobConfig shape, generalized to any S3-compatible endpoint
// (AWS, MinIO, etc.) via an optional Endpoint override.
type S3Config struct {
	BucketName    string
	Region        string
	AccessKey     string
	SecretKey     string
	Endpoint      string
	UseAccelerate bool
}
