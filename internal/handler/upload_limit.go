package handler

import "strconv"

func formatUploadLimit(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case bytes <= 0:
		return "0MB"
	case bytes < mb:
		return strconv.FormatInt((bytes+kb-1)/kb, 10) + "KB"
	case bytes%mb == 0:
		return strconv.FormatInt(bytes/mb, 10) + "MB"
	default:
		return strconv.FormatFloat(float64(bytes)/mb, 'f', 1, 64) + "MB"
	}
}
