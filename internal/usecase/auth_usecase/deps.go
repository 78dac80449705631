package auth

import (
	"time"

	"github.com/google/uuid"
)

// UUID 等のIDを作る約束
type IDGenerator interface {
	NewID() string
}

// 現在の時間
type Clock interface {
	Now() time.Time
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// SystemClockはUTCの現在時刻
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
