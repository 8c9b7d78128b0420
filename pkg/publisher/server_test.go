package publisher

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrolink/fieldgate/pkg/config"
	"github.com/agrolink/fieldgate/pkg/health"
	"github.com/agrolink/fieldgate/pkg/models"
)

type fakeRouter struct {
	mu    sync.Mutex
	feeds [][]byte
	reply string
}

func (f *fakeRouter) Feed(_ uint64, chunk []byte, respond func(reply string)) {
	f.mu.Lock()
	f.feeds = append(f.feeds, chunk)
	reply := f.reply
	f.mu.Unlock()

	if reply != "" && respond != nil {
		respond(reply)
	}
}

func (f *fakeRouter) received() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	var all []byte
	for _, chunk := range f.feeds {
		all = append(all, chunk...)
	}

	return all
}

func newTestServer(t *testing.T, router InboundHandler, maxConnections int) *Server {
	t.Helper()

	if router == nil {
		router = &fakeRouter{}
	}

	monitor := health.NewMonitor(filepath.Join(t.TempDir(), "health.json"), time.Hour)

	s := NewServer(config.PublisherConfig{
		BindAddress:    "127.0.0.1",
		Port:           0,
		MaxConnections: maxConnections,
	}, router, monitor)

	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	return s
}

func dial(t *testing.T, s *Server) net.Conn {
	t.Helper()

	conn, err := net.Dial("tcp", s.listener.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func readFrame(t *testing.T, conn net.Conn) models.Frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	header := make([]byte, 4)
	_, err := io.ReadFull(conn, header)
	require.NoError(t, err)

	body := make([]byte, binary.BigEndian.Uint32(header))
	_, err = io.ReadFull(conn, body)
	require.NoError(t, err)

	var frame models.Frame
	require.NoError(t, json.Unmarshal(body, &frame))

	return frame
}

func waitForSubscribers(t *testing.T, s *Server, count int) {
	t.Helper()

	require.Eventually(t, func() bool {
		return s.ConnectionCount() == count
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPublishWithoutSubscribersIsANoop(t *testing.T) {
	s := newTestServer(t, nil, 0)

	assert.False(t, s.HasSubscribers())

	done := make(chan struct{})
	go func() {
		s.Publish(models.Frame{Channel: models.ChannelRealtime, CorrelationID: "frame-1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish with zero subscribers did not return promptly")
	}
}

func TestPublishDeliversFramedJSON(t *testing.T) {
	s := newTestServer(t, nil, 0)

	conn := dial(t, s)
	waitForSubscribers(t, s, 1)

	published := models.Frame{
		Channel:       models.ChannelRealtime,
		Snapshot:      false,
		CorrelationID: "frame-1",
		Readings: []models.Reading{
			{Label: models.LabelRealtime, Timestamp: "2025-06-01 10:30:45", Soil: 33.1},
		},
	}
	s.Publish(published)

	assert.Equal(t, published, readFrame(t, conn))
}

func TestPublishFansOutToEverySubscriber(t *testing.T) {
	s := newTestServer(t, nil, 0)

	first := dial(t, s)
	second := dial(t, s)
	waitForSubscribers(t, s, 2)

	frame := models.Frame{Channel: models.ChannelHistoricalSoil, Snapshot: true,
		CorrelationID: "frame-9", Readings: []models.Reading{}}
	s.Publish(frame)

	assert.Equal(t, frame, readFrame(t, first))
	assert.Equal(t, frame, readFrame(t, second))
}

func TestSnapshotOnJoin(t *testing.T) {
	s := newTestServer(t, nil, 0)

	cached := []models.Reading{
		{Label: models.LabelRealtime, Timestamp: "2025-06-01 10:00:01", Soil: 1},
		{Label: models.LabelRealtime, Timestamp: "2025-06-01 10:00:02", Soil: 2},
		{Label: models.LabelRealtime, Timestamp: "2025-06-01 10:00:03", Soil: 3},
	}

	s.SetSnapshotProvider(func() []models.Frame {
		return []models.Frame{{
			Channel:       models.ChannelRealtime,
			Snapshot:      true,
			CorrelationID: "frame-4",
			Readings:      cached,
		}}
	})

	conn := dial(t, s)

	frame := readFrame(t, conn)
	assert.Equal(t, models.ChannelRealtime, frame.Channel)
	assert.True(t, frame.Snapshot)
	assert.Equal(t, cached, frame.Readings)
}

func TestSnapshotOnJoinReachesIncumbents(t *testing.T) {
	s := newTestServer(t, nil, 0)

	s.SetSnapshotProvider(func() []models.Frame {
		return []models.Frame{{
			Channel:       models.ChannelRealtime,
			Snapshot:      true,
			CorrelationID: "frame-1",
			Readings:      []models.Reading{},
		}}
	})

	incumbent := dial(t, s)
	_ = readFrame(t, incumbent) // its own join snapshot

	waitForSubscribers(t, s, 1)

	_ = dial(t, s)
	waitForSubscribers(t, s, 2)

	// The joiner's snapshot is re-broadcast to the incumbent too.
	frame := readFrame(t, incumbent)
	assert.True(t, frame.Snapshot)
}

func TestInboundBytesReachRouterAndReplyIsNewlineTerminated(t *testing.T) {
	router := &fakeRouter{reply: `{"status":"ok","message":"mode updated"}`}
	s := newTestServer(t, router, 0)

	conn := dial(t, s)
	waitForSubscribers(t, s, 1)

	_, err := conn.Write([]byte(`{"type":"mode_select","mode":1}` + "\n"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, `{"status":"ok","message":"mode updated"}`+"\n", line)

	require.Eventually(t, func() bool {
		return len(router.received()) > 0
	}, time.Second, 10*time.Millisecond)
}

func TestMaxConnectionsRejectsExcess(t *testing.T) {
	s := newTestServer(t, nil, 1)

	dial(t, s)
	waitForSubscribers(t, s, 1)

	rejected, err := net.Dial("tcp", s.listener.Addr().String())
	require.NoError(t, err)

	defer func() { _ = rejected.Close() }()

	require.NoError(t, rejected.SetReadDeadline(time.Now().Add(2*time.Second)))

	// The server closes the excess connection without registering it.
	_, err = rejected.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.Equal(t, 1, s.ConnectionCount())
}

func TestDisconnectPrunesSubscriber(t *testing.T) {
	s := newTestServer(t, nil, 0)

	conn := dial(t, s)
	waitForSubscribers(t, s, 1)

	require.NoError(t, conn.Close())
	waitForSubscribers(t, s, 0)

	assert.False(t, s.HasSubscribers())
}
