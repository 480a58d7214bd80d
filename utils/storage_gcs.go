package utils

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/disintegration/imaging"
	"google.golang.org/api/option"
)

// getGoogleClient initializes a Google Cloud Storage client.
// Prefers ADC; set GCS_CREDENTIALS_JSON to provide explicit JSON locally.
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		client, err := storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func bucketName() (string, error) {
	name := os.Getenv("GCS_BUCKET")
	if name == "" {
		return "", errors.New("GCS_BUCKET is required")
	}
	return name, nil
}

// SaveObjectToGCS writes raw bytes (invoice PDFs, attachments) to the bucket.
func SaveObjectToGCS(ctx context.Context, objectName string, contentType string, data []byte) error {
	bucket, err := bucketName()
	if err != nil {
		return err
	}
	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	w := client.Bucket(bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// SaveBase64ToGCS decodes a base64 payload (browser uploads) and stores it.
func SaveBase64ToGCS(ctx context.Context, objectName string, contentType string, encoded string) error {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return err
	}
	return SaveObjectToGCS(ctx, objectName, contentType, decoded)
}

// SaveLogoWithThumbnail stores a company logo plus a 128px thumbnail next to it.
func SaveLogoWithThumbnail(ctx context.Context, objectName string, encoded string) error {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return err
	}
	if err := SaveObjectToGCS(ctx, objectName, "image/png", decoded); err != nil {
		return err
	}

	img, err := imaging.Decode(bytes.NewReader(decoded))
	if err != nil {
		return err
	}
	thumb := imaging.Fit(img, 128, 128, imaging.Lanczos)
	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return err
	}
	return SaveObjectToGCS(ctx, fmt.Sprintf("%s_thumb", objectName), "image/png", buf.Bytes())
}

// DeleteObjectFromGCS removes a stored object. Missing objects are not an error.
func DeleteObjectFromGCS(ctx context.Context, objectName string) error {
	bucket, err := bucketName()
	if err != nil {
		return err
	}
	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	err = client.Bucket(bucket).Object(objectName).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}
