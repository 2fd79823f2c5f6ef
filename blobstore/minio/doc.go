// Package minio implements blobstore.BlobStore with the MinIO client, for
// MinIO and other S3-compatible services (Ceph, Garage, SeaweedFS).
//
// # Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "eeg", "segstore/")
package minio
