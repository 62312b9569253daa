package utils

import (
	"strings"

	"github.com/google/uuid"
)

func GenerateID() string {
	return uuid.NewString()
}

// GenerateGroupCode returns a short human readable token, e.g.
// "3F9A-C01B-77DE", shared by bookings made together.
func GenerateGroupCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return raw[0:4] + "-" + raw[4:8] + "-" + raw[8:12]
}
