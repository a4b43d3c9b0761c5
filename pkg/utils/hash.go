package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// CalculateFileSHA256 computes the hex SHA-256 of a file's content
func CalculateFileSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("%w: opening '%s': %w", ErrFilesystem, filePath, err)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("%w: reading '%s': %w", ErrFilesystem, filePath, err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// VerifyFileSHA256 reports whether the file's content still hashes to want
func VerifyFileSHA256(filePath, want string) (bool, error) {
	got, err := CalculateFileSHA256(filePath)
	if err != nil {
		return false, err
	}
	return got == want, nil
}
