//go:build linux

package conn

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"
	"unsafe"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/perf"
	"github.com/cilium/ebpf/ringbuf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"go.tracecore.dev/stitcher/pkg/core/hooks/structs"
	"go.tracecore.dev/stitcher/pkg/models"
	"go.tracecore.dev/stitcher/utils"
)

var eventAttributesSize = int(unsafe.Sizeof(structs.SocketDataEvent{}))

var realTimeOffset uint64

// ListenSocket drains the probe harness's three eBPF maps — connection
// open, socket data, connection close — into factory, one errgroup
// goroutine per map, the way the teacher's hooks package drains its own
// perf/ringbuf maps. The maps and their attach/detach lifecycle are an
// external collaborator (spec §1 Non-goal); this only owns the reader
// loops and the translation into models.DataEvent/OpenEvent/CloseEvent.
func ListenSocket(ctx context.Context, l *zap.Logger, openMap, dataMap, closeMap *ebpf.Map, factory *Factory) error {
	if err := initRealTimeOffset(); err != nil {
		utils.LogError(l, err, "failed to initialize real time offset")
		return errors.New("failed to start socket listeners")
	}

	g, ok := ctx.Value(models.ErrGroupKey).(*errgroup.Group)
	if !ok {
		return errors.New("failed to get the error group from the context")
	}

	if err := openReader(ctx, g, factory, l, openMap); err != nil {
		utils.LogError(l, err, "failed to start open socket listener")
		return errors.New("failed to start socket listeners")
	}
	if err := dataReader(ctx, g, factory, l, dataMap); err != nil {
		utils.LogError(l, err, "failed to start data socket listener")
		return errors.New("failed to start socket listeners")
	}
	if err := closeReader(ctx, g, factory, l, closeMap); err != nil {
		utils.LogError(l, err, "failed to start close socket listener")
		return errors.New("failed to start socket listeners")
	}
	return nil
}

func openReader(ctx context.Context, g *errgroup.Group, factory *Factory, l *zap.Logger, m *ebpf.Map) error {
	r, err := perf.NewReader(m, os.Getpagesize())
	if err != nil {
		utils.LogError(l, err, "failed to create perf event reader of socket open events")
		return err
	}

	g.Go(func() error {
		defer utils.Recover(l)
		go func() {
			defer utils.Recover(l)
			for {
				rec, err := r.Read()
				if err != nil {
					if errors.Is(err, perf.ErrClosed) {
						return
					}
					utils.LogError(l, err, "failed to read from perf open-event reader")
					continue
				}
				if rec.LostSamples != 0 {
					l.Debug("lost open-event samples", zap.Uint64("count", rec.LostSamples))
					continue
				}
				var event structs.SocketOpenEvent
				if err := binary.Read(bytes.NewReader(rec.RawSample), binary.LittleEndian, &event); err != nil {
					utils.LogError(l, err, "failed to decode socket open event")
					continue
				}
				factory.AddOpenEvent(toOpenEvent(event))
			}
		}()
		<-ctx.Done()
		if err := r.Close(); err != nil {
			utils.LogError(l, err, "failed to close perf open-event reader")
		}
		return nil
	})
	return nil
}

func dataReader(ctx context.Context, g *errgroup.Group, factory *Factory, l *zap.Logger, m *ebpf.Map) error {
	r, err := ringbuf.NewReader(m)
	if err != nil {
		utils.LogError(l, err, "failed to create ring buffer reader of socket data events")
		return err
	}

	g.Go(func() error {
		defer utils.Recover(l)
		go func() {
			defer utils.Recover(l)
			for {
				record, err := r.Read()
				if err != nil {
					if !errors.Is(err, ringbuf.ErrClosed) {
						utils.LogError(l, err, "failed to read from ringbuf data-event reader")
					}
					return
				}

				bin := record.RawSample
				if len(bin) < eventAttributesSize {
					l.Debug(fmt.Sprintf("data event buffer (%d) smaller than struct size (%d)", len(bin), eventAttributesSize))
					continue
				}
				if len(bin) > structs.EventBodyMaxSize+eventAttributesSize {
					l.Debug(fmt.Sprintf("data event buffer (%d) larger than max struct size (%d)", len(bin), structs.EventBodyMaxSize+eventAttributesSize))
					continue
				}

				var event structs.SocketDataEvent
				if err := binary.Read(bytes.NewReader(bin), binary.LittleEndian, &event); err != nil {
					utils.LogError(l, err, "failed to decode socket data event")
					continue
				}
				factory.AddDataEvent(toDataEvent(event))
			}
		}()
		<-ctx.Done()
		if err := r.Close(); err != nil {
			utils.LogError(l, err, "failed to close ringbuf data-event reader")
		}
		return nil
	})
	return nil
}

func closeReader(ctx context.Context, g *errgroup.Group, factory *Factory, l *zap.Logger, m *ebpf.Map) error {
	r, err := perf.NewReader(m, os.Getpagesize())
	if err != nil {
		utils.LogError(l, err, "failed to create perf event reader of socket close events")
		return err
	}

	g.Go(func() error {
		defer utils.Recover(l)
		go func() {
			defer utils.Recover(l)
			for {
				rec, err := r.Read()
				if err != nil {
					if errors.Is(err, perf.ErrClosed) {
						return
					}
					utils.LogError(l, err, "failed to read from perf close-event reader")
					continue
				}
				if rec.LostSamples != 0 {
					l.Debug("lost close-event samples", zap.Uint64("count", rec.LostSamples))
					continue
				}
				var event structs.SocketCloseEvent
				if err := binary.Read(bytes.NewReader(rec.RawSample), binary.LittleEndian, &event); err != nil {
					utils.LogError(l, err, "failed to decode socket close event")
					continue
				}
				factory.AddCloseEvent(toCloseEvent(event))
			}
		}()
		<-ctx.Done()
		if err := r.Close(); err != nil {
			utils.LogError(l, err, "failed to close perf close-event reader")
		}
		return nil
	})
	return nil
}

func streamID(c structs.ConnID) models.StreamID {
	return models.NewStreamID(c.TGID, uint32(c.FD))
}

func toDataEvent(e structs.SocketDataEvent) models.DataEvent {
	var direction models.Direction
	if e.Direction == structs.IngressTraffic {
		direction = models.DirectionIngress
	}
	return models.DataEvent{
		StreamID:    streamID(e.ConnID),
		Direction:   direction,
		TimestampNs: e.TimestampNano + getRealTimeOffset(),
		Bytes:       append([]byte{}, e.Msg[:e.MsgSize]...),
	}
}

func toOpenEvent(e structs.SocketOpenEvent) models.OpenEvent {
	return models.OpenEvent{
		StreamID:       streamID(e.ConnID),
		RemoteAddr:     formatIPv4(e.Addr.SinAddr),
		RemotePort:     ntohs(e.Addr.SinPort),
		FileDescriptor: e.ConnID.FD,
		TimestampNs:    e.TimestampNano + getRealTimeOffset(),
	}
}

func toCloseEvent(e structs.SocketCloseEvent) models.CloseEvent {
	return models.CloseEvent{
		StreamID:    streamID(e.ConnID),
		TimestampNs: e.TimestampNano + getRealTimeOffset(),
	}
}

func ntohs(v uint16) uint16 {
	return v<<8 | v>>8
}

func formatIPv4(addr uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(addr), byte(addr>>8), byte(addr>>16), byte(addr>>24))
}

// initRealTimeOffset computes the delta between CLOCK_MONOTONIC (what the
// probe timestamps events with) and CLOCK_REALTIME, so every subsequent
// timestamp read off the wire can be converted to wall-clock time with a
// single addition.
func initRealTimeOffset() error {
	var monotonicTime, realTime unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &monotonicTime); err != nil {
		return fmt.Errorf("failed getting monotonic clock: %w", err)
	}
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &realTime); err != nil {
		return fmt.Errorf("failed getting real clock: %w", err)
	}
	realTimeOffset = uint64(time.Second)*(uint64(realTime.Sec)-uint64(monotonicTime.Sec)) + uint64(realTime.Nsec) - uint64(monotonicTime.Nsec)
	return nil
}

func getRealTimeOffset() uint64 {
	return realTimeOffset
}
