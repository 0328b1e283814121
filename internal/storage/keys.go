package storage

import "fmt"

var videoExtensions = map[string]string{
	"video/mp4":       "mp4",
	"video/webm":      "webm",
	"video/quicktime": "mov",
}

var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// VideoExtension reports the file extension for an accepted video upload type.
func VideoExtension(contentType string) (string, bool) {
	ext, ok := videoExtensions[contentType]
	return ext, ok
}

func ImageExtension(contentType string) (string, bool) {
	ext, ok := imageExtensions[contentType]
	return ext, ok
}

func UploadKey(userID, videoID, ext string) string {
	return fmt.Sprintf("uploads/%s/%s.%s", userID, videoID, ext)
}

func ThumbnailKey(userID, videoID, ext string) string {
	return fmt.Sprintf("thumbnails/%s/%s.%s", userID, videoID, ext)
}

func GeneratedThumbnailKey(userID, videoID string) string {
	return fmt.Sprintf("thumbnails/%s/%s-ai.png", userID, videoID)
}
