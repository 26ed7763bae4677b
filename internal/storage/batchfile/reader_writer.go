package batchfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"
)

// Encryption seals event payloads at rest
type Encryption interface {
	Encrypt(data []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
}

// ReaderWriter appends events to batch files and reads them back
type ReaderWriter interface {
	// WriteData appends (or replaces, when append is false) one event block
	WriteData(file string, data []byte, append bool) bool
	// ReadData returns the events of a batch file in write order
	ReadData(file string) [][]byte
}

// BatchFileReaderWriter stores each event as one framed block
type BatchFileReaderWriter struct {
	encryption Encryption
	logger     *zap.Logger
}

// NewBatchFileReaderWriter creates a batch reader/writer. encryption may be nil.
func NewBatchFileReaderWriter(encryption Encryption, logger *zap.Logger) *BatchFileReaderWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchFileReaderWriter{
		encryption: encryption,
		logger:     logger,
	}
}

// WriteData implements ReaderWriter
func (rw *BatchFileReaderWriter) WriteData(file string, data []byte, append bool) bool {
	blockType := BlockTypeEvent
	payload := data
	if rw.encryption != nil {
		sealed, err := rw.encryption.Encrypt(data)
		if err != nil {
			rw.logger.Error("Failed to encrypt event, dropping it",
				zap.String("file", file),
				zap.Error(err))
			return false
		}
		blockType = BlockTypeEncryptedEvent
		payload = sealed
	}

	if err := writeBytes(file, EncodeBlock(blockType, payload), append); err != nil {
		rw.logger.Error("Failed to write batch file",
			zap.String("file", file),
			zap.Error(err))
		return false
	}
	return true
}

// ReadData implements ReaderWriter. Damaged tails and undecryptable blocks
// are skipped; everything readable before them is returned.
func (rw *BatchFileReaderWriter) ReadData(file string) [][]byte {
	raw, err := os.ReadFile(file)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			rw.logger.Error("Failed to read batch file",
				zap.String("file", file),
				zap.Error(err))
		}
		return nil
	}

	blocks, err := DecodeBlocks(raw)
	if err != nil {
		rw.logger.Warn("Batch file is damaged, keeping readable blocks",
			zap.String("file", file),
			zap.Int("blocks", len(blocks)),
			zap.Error(err))
	}

	events := make([][]byte, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case BlockTypeEvent:
			events = append(events, b.Data)
		case BlockTypeEncryptedEvent:
			if rw.encryption == nil {
				rw.logger.Warn("Encrypted block found but no encryption is configured",
					zap.String("file", file))
				continue
			}
			plain, err := rw.encryption.Decrypt(b.Data)
			if err != nil {
				rw.logger.Warn("Failed to decrypt block, skipping it",
					zap.String("file", file),
					zap.Error(err))
				continue
			}
			events = append(events, plain)
		default:
			rw.logger.Warn("Unknown block type, skipping it",
				zap.String("file", file),
				zap.Uint16("type", uint16(b.Type)))
		}
	}
	return events
}

// FileReaderWriter reads and writes whole files, used for single-record
// artifacts such as the last known user or network state
type FileReaderWriter struct {
	encryption Encryption
	logger     *zap.Logger
}

// NewFileReaderWriter creates a plain file reader/writer. encryption may be nil.
func NewFileReaderWriter(encryption Encryption, logger *zap.Logger) *FileReaderWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileReaderWriter{
		encryption: encryption,
		logger:     logger,
	}
}

// WriteData writes data to file. Appending is not supported with encryption.
func (rw *FileReaderWriter) WriteData(file string, data []byte, append bool) bool {
	payload := data
	if rw.encryption != nil {
		if append {
			rw.logger.Error("Append is not supported for encrypted files",
				zap.String("file", file))
			return false
		}
		sealed, err := rw.encryption.Encrypt(data)
		if err != nil {
			rw.logger.Error("Failed to encrypt file content",
				zap.String("file", file),
				zap.Error(err))
			return false
		}
		payload = sealed
	}

	if err := writeBytes(file, payload, append); err != nil {
		rw.logger.Error("Failed to write file",
			zap.String("file", file),
			zap.Error(err))
		return false
	}
	return true
}

// ReadData returns the file content, or nil when it is missing or unreadable
func (rw *FileReaderWriter) ReadData(file string) []byte {
	raw, err := os.ReadFile(file)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			rw.logger.Error("Failed to read file",
				zap.String("file", file),
				zap.Error(err))
		}
		return nil
	}
	if rw.encryption == nil {
		return raw
	}

	plain, err := rw.encryption.Decrypt(raw)
	if err != nil {
		rw.logger.Warn("Failed to decrypt file",
			zap.String("file", file),
			zap.Error(err))
		return nil
	}
	return plain
}

func writeBytes(file string, data []byte, append bool) error {
	flags := os.O_CREATE | os.O_WRONLY
	if append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(file, flags, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}
