package stitcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.tracecore.dev/stitcher/pkg/core/hooks/conn"
	"go.tracecore.dev/stitcher/pkg/core/mysql"
	"go.tracecore.dev/stitcher/pkg/core/mysql/stmt"
	"go.tracecore.dev/stitcher/pkg/models"
)

type fakeSink struct {
	records []models.TraceRecord
}

func (s *fakeSink) Emit(rec models.TraceRecord) {
	s.records = append(s.records, rec)
}

func framedPacket(seq byte, payload []byte) []byte {
	length := len(payload)
	hdr := []byte{byte(length), byte(length >> 8), byte(length >> 16), seq}
	return append(hdr, payload...)
}

func queryRequestBytes(seq byte, text string) []byte {
	return framedPacket(seq, append([]byte{byte(mysql.ComQuery)}, text...))
}

func okResponseBytes(seq byte) []byte {
	return framedPacket(seq, []byte{0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00})
}

func stmtCloseRequestBytes(seq byte, stmtID uint32) []byte {
	payload := []byte{byte(mysql.ComStmtClose), byte(stmtID), byte(stmtID >> 8), byte(stmtID >> 16), byte(stmtID >> 24)}
	return framedPacket(seq, payload)
}

func stmtExecuteRequestBytes(seq byte, stmtID uint32) []byte {
	payload := []byte{byte(mysql.ComStmtExecute),
		byte(stmtID), byte(stmtID >> 8), byte(stmtID >> 16), byte(stmtID >> 24),
		0x00,
		0x01, 0x00, 0x00, 0x00,
	}
	return framedPacket(seq, payload)
}

// TestStitcher_PairsInArrivalOrder covers P5: three requests and three
// responses, all requests delivered before any response, pair
// (R1,S1),(R2,S2),(R3,S3) in one tick because invariant I1 pops each queue
// strictly FIFO.
func TestStitcher_PairsInArrivalOrder(t *testing.T) {
	f := conn.NewFactory(models.ProtocolMySQL, models.RoleRequestor, 0, time.Minute, nil)
	id := models.NewStreamID(1, 1)

	f.AddDataEvent(models.DataEvent{StreamID: id, Direction: models.DirectionEgress, TimestampNs: 1, Bytes: queryRequestBytes(0, "Q1")})
	f.AddDataEvent(models.DataEvent{StreamID: id, Direction: models.DirectionEgress, TimestampNs: 2, Bytes: queryRequestBytes(1, "Q2")})
	f.AddDataEvent(models.DataEvent{StreamID: id, Direction: models.DirectionEgress, TimestampNs: 3, Bytes: queryRequestBytes(2, "Q3")})
	f.AddDataEvent(models.DataEvent{StreamID: id, Direction: models.DirectionIngress, TimestampNs: 4, Bytes: okResponseBytes(0)})
	f.AddDataEvent(models.DataEvent{StreamID: id, Direction: models.DirectionIngress, TimestampNs: 5, Bytes: okResponseBytes(1)})
	f.AddDataEvent(models.DataEvent{StreamID: id, Direction: models.DirectionIngress, TimestampNs: 6, Bytes: okResponseBytes(2)})

	sink := &fakeSink{}
	s := New([]*conn.Factory{f}, time.Hour, sink, nil)
	s.Tick(time.Unix(0, 100))

	require.Len(t, sink.records, 3)
	for i, rec := range sink.records {
		req, ok := rec.Request.(*mysql.Request)
		require.True(t, ok)
		assert.Equal(t, []string{"Q1", "Q2", "Q3"}[i], req.Text)
		_, ok = rec.Response.(*mysql.Response)
		assert.True(t, ok)
	}
}

// TestStitcher_StmtCloseErasesImmediately covers P6: once COM_STMT_CLOSE is
// drained, the very next StmtExecute against the same id sees it as
// unregistered, without waiting for age-out or a response.
func TestStitcher_StmtCloseErasesImmediately(t *testing.T) {
	f := conn.NewFactory(models.ProtocolMySQL, models.RoleRequestor, 0, time.Minute, nil)
	id := models.NewStreamID(1, 1)
	tr := f.GetOrCreate(id)
	tr.PreparedStatements().Put(7, stmt.Entry{PrepareQuery: "SELECT ?", NumParams: 0})

	f.AddDataEvent(models.DataEvent{StreamID: id, Direction: models.DirectionEgress, TimestampNs: 1, Bytes: stmtCloseRequestBytes(0, 7)})
	f.AddDataEvent(models.DataEvent{StreamID: id, Direction: models.DirectionEgress, TimestampNs: 2, Bytes: stmtExecuteRequestBytes(1, 7)})

	sink := &fakeSink{}
	s := New([]*conn.Factory{f}, time.Hour, sink, nil)
	s.Tick(time.Unix(0, 100))

	require.Len(t, sink.records, 1)
	closeReq, ok := sink.records[0].Request.(*mysql.Request)
	require.True(t, ok)
	assert.Equal(t, mysql.ComStmtClose, closeReq.Command)
	assert.Nil(t, sink.records[0].Response)

	_, stillThere := tr.PreparedStatements().Get(7)
	assert.False(t, stillThere)

	req, ok := tr.PeekRequestAsMySQL()
	require.True(t, ok)
	assert.Equal(t, mysql.StmtIDNotFound, req.StmtIDOrPlaceholder)
}

// TestStitcher_AgesOutUnansweredRequests covers the requestMaxAge policy:
// a request with no response past the age limit is discarded, not paired.
func TestStitcher_AgesOutUnansweredRequests(t *testing.T) {
	f := conn.NewFactory(models.ProtocolMySQL, models.RoleRequestor, 0, time.Minute, nil)
	id := models.NewStreamID(1, 1)
	f.AddDataEvent(models.DataEvent{StreamID: id, Direction: models.DirectionEgress, TimestampNs: 1, Bytes: queryRequestBytes(0, "Q1")})

	sink := &fakeSink{}
	s := New([]*conn.Factory{f}, time.Second, sink, nil)
	s.Tick(time.Unix(0, int64(time.Hour)))

	assert.Empty(t, sink.records)
	tr := f.GetOrCreate(id)
	assert.Equal(t, 0, tr.PendingRequestCount())
}
