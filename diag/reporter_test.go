package diag

import (
	"context"
	"errors"
	"net"
	"sort"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/storagesync/sxlock"
)

// listen opens a local UDP socket standing in for the statsd daemon.
func listen(t *testing.T) *net.UDPConn {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// drain reads datagrams until n stat lines arrived or a second passed.
func drain(conn *net.UDPConn, n int) []string {
	var lines []string
	buf := make([]byte, 4096)
	deadline := time.Now().Add(time.Second)
	for len(lines) < n {
		_ = conn.SetReadDeadline(deadline)
		k, err := conn.Read(buf)
		if err != nil {
			break
		}
		for _, l := range strings.Split(string(buf[:k]), "\n") {
			if l != "" {
				lines = append(lines, l)
			}
		}
	}
	sort.Strings(lines)
	return lines
}

type recordLogger struct{ lines []string }

func (l *recordLogger) Printf(format string, v ...any) {
	l.lines = append(l.lines, format)
}

func TestReporter(t *testing.T) {
	Convey("Given a registry with one lock of each kind", t, func() {
		var reg sxlock.Registry
		fs := sxlock.NewFSLock("cache")
		rw, err := sxlock.NewRWLock("txn")
		So(err, ShouldBeNil)
		cv := sxlock.NewCondVar("evict", false)
		var fl sxlock.FairLock
		So(reg.Register("cache", fs), ShouldBeNil)
		So(reg.Register("txn", rw), ShouldBeNil)
		So(reg.Register("evict", cv), ShouldBeNil)
		So(reg.Register("free", &fl), ShouldBeNil)

		conn := listen(t)
		client, err := Dial(conn.LocalAddr().String(), "engine")
		So(err, ShouldBeNil)
		defer client.Close()

		Convey("Report sends one gauge per field", func() {
			fl.Lock()
			rw.RLock()
			err := NewReporter(&reg, client).Report()
			fl.Unlock()
			rw.RUnlock()
			So(err, ShouldBeNil)

			lines := drain(conn, 7)
			So(lines, ShouldResemble, []string{
				"engine.condvar.evict.waiters:0|g",
				"engine.fairlock.free.queued:1|g",
				"engine.fslock.cache.blockers:0|g",
				"engine.fslock.cache.contenders:0|g",
				"engine.fslock.cache.last_acquire:0|g",
				"engine.fslock.cache.last_release:0|g",
				"engine.rwlock.txn.queued:1|g",
			})
		})

		Convey("Run reports until the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			r := NewReporter(&reg, client, WithInterval(10*time.Millisecond))
			err := r.Run(ctx)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			So(len(drain(conn, 7)), ShouldBeGreaterThanOrEqualTo, 7)
		})
	})
}

func TestGaugesByKind(t *testing.T) {
	Convey("gauges picks the fields of each kind", t, func() {
		g := gauges(sxlock.Diagnostics{Kind: sxlock.KindFSLock, Name: "x", Blockers: 3})
		So(len(g), ShouldEqual, 4)
		So(g[1], ShouldResemble, gauge{"fslock.x.blockers", 3})

		g = gauges(sxlock.Diagnostics{Kind: sxlock.KindRWLock, Name: "y", Queued: 2})
		So(g, ShouldResemble, []gauge{{"rwlock.y.queued", 2}})
	})
}

func TestReporterLogsFailures(t *testing.T) {
	Convey("A closed client fails every gauge and logs it", t, func() {
		var reg sxlock.Registry
		So(reg.Register("evict", sxlock.NewCondVar("evict", false)), ShouldBeNil)

		conn := listen(t)
		client, err := Dial(conn.LocalAddr().String(), "engine")
		So(err, ShouldBeNil)
		So(client.Close(), ShouldBeNil)

		log := &recordLogger{}
		err = NewReporter(&reg, client, WithLogger(log)).Report()
		So(err, ShouldNotBeNil)
		So(len(log.lines), ShouldEqual, 1)
	})
}
