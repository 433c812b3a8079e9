package servo

import (
	"fmt"
	"os"
)

// FilePort writes commands to a character device such as /dev/ttyUSB0.
// Line speed and framing are expected to be configured on the device
// beforehand (the firmware side runs 9600 8N1 by default).
type FilePort struct {
	f *os.File
}

// OpenFilePort opens the serial device for writing.
func OpenFilePort(path string) (*FilePort, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open serial device: %w", err)
	}
	return &FilePort{f: f}, nil
}

// WriteLine sends one newline-terminated command.
func (p *FilePort) WriteLine(line string) error {
	_, err := p.f.WriteString(line + "\n")
	return err
}

// Close releases the device.
func (p *FilePort) Close() error {
	return p.f.Close()
}
