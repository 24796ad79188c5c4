// Package artifacts stores uploaded build files and keeps a record of each
// upload per organization.
//
// Object bytes live behind the Storage interface, with S3 (or any S3
// compatible service such as MinIO) and local filesystem backends. Build
// records live in Postgres. Objects are keyed
//
//	orgs/{organization id}/builds/{uuid}/{file name}
//
// so two uploads never collide even when they share a file name.
package artifacts
