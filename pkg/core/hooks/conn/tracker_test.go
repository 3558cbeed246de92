package conn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.tracecore.dev/stitcher/config"
	"go.tracecore.dev/stitcher/pkg/core/mysql"
	"go.tracecore.dev/stitcher/pkg/models"
)

func queryPacket(seq byte, text string) []byte {
	payload := append([]byte{byte(mysql.ComQuery)}, text...)
	length := len(payload)
	hdr := []byte{byte(length), byte(length >> 8), byte(length >> 16), seq}
	return append(hdr, payload...)
}

func okPacket(seq byte) []byte {
	payload := []byte{0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00}
	length := len(payload)
	hdr := []byte{byte(length), byte(length >> 8), byte(length >> 16), seq}
	return append(hdr, payload...)
}

func TestDeriveRole(t *testing.T) {
	role, err := DeriveRole(config.CaptureMask{SendReq: true, RecvResp: true})
	require.NoError(t, err)
	assert.Equal(t, models.RoleRequestor, role)

	role, err = DeriveRole(config.CaptureMask{SendResp: true, RecvReq: true})
	require.NoError(t, err)
	assert.Equal(t, models.RoleResponder, role)

	_, err = DeriveRole(config.CaptureMask{SendReq: true, RecvReq: true})
	assert.Error(t, err)
}

// TestTracker_RequestorRouting covers spec §4.5's direction semantics for a
// RoleRequestor tracker: egress bytes are requests, ingress bytes are
// responses.
func TestTracker_RequestorRouting(t *testing.T) {
	tr := NewTracker(models.NewStreamID(1, 1), models.RoleRequestor, 0, nil)
	tr.AddDataEvent(models.DataEvent{Direction: models.DirectionEgress, TimestampNs: 1, Bytes: queryPacket(0, "SELECT 1")}, models.ProtocolMySQL)
	tr.AddDataEvent(models.DataEvent{Direction: models.DirectionIngress, TimestampNs: 2, Bytes: okPacket(0)}, models.ProtocolMySQL)

	tr.ExtractMessages()

	require.Equal(t, 1, tr.PendingRequestCount())
	require.Equal(t, 1, tr.PendingResponseCount())

	req, ok := tr.PeekRequestAsMySQL()
	require.True(t, ok)
	assert.Equal(t, "SELECT 1", req.Text)
}

// TestTracker_ExtractMessages_Idempotent covers P3: calling ExtractMessages
// again with no new bytes produces no additional messages.
func TestTracker_ExtractMessages_Idempotent(t *testing.T) {
	tr := NewTracker(models.NewStreamID(1, 1), models.RoleRequestor, 0, nil)
	tr.AddDataEvent(models.DataEvent{Direction: models.DirectionEgress, TimestampNs: 1, Bytes: queryPacket(0, "SELECT 1")}, models.ProtocolMySQL)

	tr.ExtractMessages()
	require.Equal(t, 1, tr.PendingRequestCount())

	tr.ExtractMessages()
	tr.ExtractMessages()
	assert.Equal(t, 1, tr.PendingRequestCount())
}

// TestTracker_ProtocolAssignedOnce covers spec §4.5: the protocol sticks to
// whatever the first data event declared.
func TestTracker_ProtocolAssignedOnce(t *testing.T) {
	tr := NewTracker(models.NewStreamID(1, 1), models.RoleRequestor, 0, nil)
	assert.Equal(t, models.ProtocolUnknown, tr.Protocol())
	tr.AddDataEvent(models.DataEvent{Direction: models.DirectionEgress, TimestampNs: 1, Bytes: queryPacket(0, "SELECT 1")}, models.ProtocolMySQL)
	assert.Equal(t, models.ProtocolMySQL, tr.Protocol())
	tr.AddDataEvent(models.DataEvent{Direction: models.DirectionEgress, TimestampNs: 2, Bytes: nil}, models.ProtocolHTTP1)
	assert.Equal(t, models.ProtocolMySQL, tr.Protocol())
}

// TestTracker_DrainableAt covers the factory's eviction signal: only
// drainable once closed, queues are empty, and the drain period elapsed.
func TestTracker_DrainableAt(t *testing.T) {
	tr := NewTracker(models.NewStreamID(1, 1), models.RoleRequestor, 0, nil)
	closedAt := time.Unix(100, 0)
	assert.False(t, tr.DrainableAt(closedAt, time.Minute))

	tr.AddCloseEvent(models.CloseEvent{TimestampNs: uint64(closedAt.UnixNano())})
	assert.True(t, tr.Closed())
	assert.False(t, tr.DrainableAt(closedAt, time.Minute))
	assert.True(t, tr.DrainableAt(closedAt.Add(2*time.Minute), time.Minute))
}
