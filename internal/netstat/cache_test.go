package netstat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shellrow/nustat/internal/netmodel"
)

func TestCacheAccumulatesAcrossTicks(t *testing.T) {
	s := New()
	cache := NewCache(s)

	s.Update(egressFrame(1111, 443, "93.184.216.34", netmodel.TcpFlags{SYN: true}, 10))

	ctx, cancel := context.WithCancel(context.Background())
	go cache.Run(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return cache.Latest().Traffic.BytesOut == 10
	}, 200*time.Millisecond, 5*time.Millisecond)

	s.Update(egressFrame(1111, 443, "93.184.216.34", netmodel.TcpFlags{ACK: true}, 20))

	assert.Eventually(t, func() bool {
		return cache.Latest().Traffic.BytesOut == 30
	}, 200*time.Millisecond, 5*time.Millisecond)

	cancel()
}
