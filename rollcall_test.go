package rollcall

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/abihf/rollcall/attendance"
	"github.com/abihf/rollcall/capture"
	"github.com/abihf/rollcall/dataset"
	"github.com/abihf/rollcall/detect"
	"github.com/abihf/rollcall/internal/synth"
	"github.com/abihf/rollcall/lbph"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLocator reports the whole frame as a face counts[i] times on call i,
// and once per call after that.
type stubLocator struct {
	counts []int
	calls  int
}

func (s *stubLocator) Locate(img *image.Gray) ([]detect.Box, error) {
	n := 1
	if s.calls < len(s.counts) {
		n = s.counts[s.calls]
	}
	s.calls++
	boxes := make([]detect.Box, n)
	for i := range boxes {
		boxes[i] = detect.Box{Rectangle: img.Bounds(), Quality: 10, Neighbors: 3}
	}
	return boxes, nil
}

type failingSource struct{ opens int }

func (s *failingSource) Open(context.Context) (capture.Stream, error) {
	s.opens++
	return nil, errors.Wrap(capture.ErrDeviceUnavailable, "/dev/video9")
}

func faces(id string, variants ...int) []*capture.Frame {
	var frames []*capture.Frame
	for _, v := range variants {
		frames = append(frames, capture.FromImage(synth.Face(id, v, dataset.DefaultSize)))
	}
	return frames
}

func fixedClock() time.Time { return time.Date(2024, 3, 4, 8, 30, 0, 0, time.Local) }

type fixture struct {
	store     *dataset.Store
	modelPath string
	handle    *lbph.Handle
	log       *attendance.MemoryLog
	recorder  *attendance.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		store:     dataset.NewStore(filepath.Join(dir, "dataset"), dataset.DefaultSize),
		modelPath: filepath.Join(dir, "model", "face_model.cbor"),
		handle:    lbph.NewHandle(),
		log:       attendance.NewMemoryLog(),
	}
	f.recorder = attendance.NewRecorder(f.log, attendance.DefaultThreshold, attendance.WithClock(fixedClock))
	return f
}

func (f *fixture) enroll(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		res, err := Enroll(context.Background(), EnrollOptions{
			Identity: id,
			Source:   capture.NewReplay(faces(id, 1, 2, 3, 4, 5)...),
			Locator:  &stubLocator{},
			Store:    f.store,
			Target:   5,
		})
		require.NoError(t, err)
		require.True(t, res.Complete)
	}
}

func (f *fixture) train(t *testing.T) {
	t.Helper()
	_, err := Train(context.Background(), TrainOptions{Store: f.store, ModelPath: f.modelPath})
	require.NoError(t, err)
	_, err = f.handle.Load(f.modelPath)
	require.NoError(t, err)
}

func TestEnroll_OnlySingleFaceFrames(t *testing.T) {
	f := newFixture(t)
	src := capture.NewReplay(faces("alice", 1, 2, 3, 4, 5, 6, 7, 8)...)

	var progress []int
	res, err := Enroll(context.Background(), EnrollOptions{
		Identity: "alice",
		Source:   src,
		Locator:  &stubLocator{counts: []int{1, 0, 2, 1, 1, 3, 1}},
		Store:    f.store,
		Target:   4,
		Progress: func(p EnrollProgress) { progress = append(progress, p.Count) },
	})
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, 4, res.Count)
	assert.Equal(t, 4, res.Captured)
	assert.Equal(t, 7, res.Frames)
	assert.Equal(t, 1, res.NoFace)
	assert.Equal(t, 2, res.MultipleFaces)
	assert.Equal(t, []int{1, 2, 3, 4}, progress)
	assert.Zero(t, src.Acquired())

	n, err := f.store.Count("alice")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestEnroll_AlreadyComplete(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice")

	src := &failingSource{}
	res, err := Enroll(context.Background(), EnrollOptions{
		Identity: "alice", Source: src, Locator: &stubLocator{}, Store: f.store, Target: 5,
	})
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Zero(t, src.opens)
}

func TestEnroll_ResetStartsOver(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice")

	res, err := Enroll(context.Background(), EnrollOptions{
		Identity: "alice",
		Source:   capture.NewReplay(faces("alice", 9, 10)...),
		Locator:  &stubLocator{},
		Store:    f.store,
		Target:   2,
		Reset:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 2, res.Captured)
}

func TestEnroll_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := Enroll(context.Background(), EnrollOptions{Identity: "../x", Store: f.store})
	assert.ErrorIs(t, err, ErrInvalidIdentity)

	_, err = Enroll(context.Background(), EnrollOptions{
		Identity: "alice", Source: &failingSource{}, Locator: &stubLocator{}, Store: f.store,
	})
	assert.ErrorIs(t, err, ErrDeviceUnavailable)

	src := capture.NewReplay(faces("alice", 1)...)
	res, err := Enroll(context.Background(), EnrollOptions{
		Identity: "alice", Source: src, Locator: &stubLocator{}, Store: f.store, Target: 3,
	})
	assert.ErrorIs(t, err, ErrDeviceDisconnected)
	assert.Equal(t, 1, res.Count)
	assert.False(t, res.Complete)
	assert.Zero(t, src.Acquired())
}

func TestEnroll_CancelledIsPartial(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	src := &capture.Replay{Frames: faces("alice", 1, 2), Hold: true}

	res, err := Enroll(ctx, EnrollOptions{
		Identity: "alice",
		Source:   src,
		Locator:  &stubLocator{},
		Store:    f.store,
		Target:   10,
		Progress: func(p EnrollProgress) {
			if p.Count == 2 {
				cancel()
			}
		},
	})
	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Equal(t, 2, res.Count)
	assert.Zero(t, src.Acquired())
}

func TestTrain_EmptyDatasetWritesNothing(t *testing.T) {
	f := newFixture(t)
	_, err := Train(context.Background(), TrainOptions{Store: f.store, ModelPath: f.modelPath})
	assert.ErrorIs(t, err, ErrEmptyDataset)

	_, statErr := os.Stat(f.modelPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestTrain_InsufficientSamples(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice")
	_, err := f.store.AddSample("bob", synth.Face("bob", 1, dataset.DefaultSize))
	require.NoError(t, err)

	_, err = Train(context.Background(), TrainOptions{Store: f.store, ModelPath: f.modelPath})
	var ise *lbph.InsufficientSamplesError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "bob", ise.Identity)

	_, statErr := os.Stat(f.modelPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestVerify_MarksEachIdentityOnce(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice", "bob")
	f.train(t)

	frames := append(faces("alice", 21, 22), faces("bob", 23)...)
	frames = append(frames, faces("alice", 24)...)
	src := &capture.Replay{Frames: frames, Hold: true}

	var matches []Match
	res, err := Verify(context.Background(), VerifyOptions{
		Source:   src,
		Locator:  &stubLocator{},
		Model:    f.handle,
		Recorder: f.recorder,
		Timeout:  300 * time.Millisecond,
		OnMatch:  func(m Match) { matches = append(matches, m) },
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.ModelVersion)
	assert.Equal(t, 4, res.Frames)
	assert.Equal(t, []string{"alice", "bob"}, res.Marked)
	assert.Equal(t, 2, res.Duplicates)
	assert.Zero(t, res.Rejected)
	require.Len(t, matches, 4)
	assert.Equal(t, attendance.Duplicate, matches[3].Outcome)
	assert.Zero(t, src.Acquired())

	assert.Equal(t, []attendance.Event{
		{Identity: "alice", Date: "2024-03-04", Time: "08:30:00"},
		{Identity: "bob", Date: "2024-03-04", Time: "08:30:00"},
	}, f.log.Events())
}

func TestVerify_StopAfterFirstMark(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice", "bob")
	f.train(t)

	src := capture.NewReplay(append(faces("alice", 30), faces("bob", 31)...)...)
	res, err := Verify(context.Background(), VerifyOptions{
		Source:             src,
		Locator:            &stubLocator{},
		Model:              f.handle,
		Recorder:           f.recorder,
		StopAfterFirstMark: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, res.Marked)
	assert.Equal(t, 1, res.Frames)
	assert.Len(t, f.log.Events(), 1)
}

func TestVerify_StrangerRejected(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice", "bob")
	f.train(t)

	res, err := Verify(context.Background(), VerifyOptions{
		Source:   &capture.Replay{Frames: faces("carol", 1, 2), Hold: true},
		Locator:  &stubLocator{},
		Model:    f.handle,
		Recorder: f.recorder,
		Timeout:  100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rejected)
	assert.Empty(t, res.Marked)
	assert.Empty(t, f.log.Events())
}

func TestVerify_ModelNotLoaded(t *testing.T) {
	f := newFixture(t)
	src := &failingSource{}
	_, err := Verify(context.Background(), VerifyOptions{
		Source: src, Locator: &stubLocator{}, Model: f.handle, Recorder: f.recorder,
	})
	assert.ErrorIs(t, err, ErrModelNotLoaded)
	assert.Zero(t, src.opens)
}

func TestVerify_DeviceUnavailable(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice")
	f.train(t)

	src := &failingSource{}
	res, err := Verify(context.Background(), VerifyOptions{
		Source: src, Locator: &stubLocator{}, Model: f.handle, Recorder: f.recorder,
	})
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Equal(t, 1, src.opens)
	assert.Zero(t, res.Frames)
	assert.Empty(t, f.log.Events())

	// nothing is left locked: the same identity can still be marked
	out, err := f.recorder.Observe(context.Background(), lbph.Prediction{Identity: "alice", Distance: 1})
	require.NoError(t, err)
	assert.Equal(t, attendance.Marked, out)
}

func TestVerify_InvalidFrameAborts(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice")
	f.train(t)

	src := capture.NewReplay(&capture.Frame{Width: 0, Height: 10})
	_, err := Verify(context.Background(), VerifyOptions{
		Source: src, Locator: &stubLocator{}, Model: f.handle, Recorder: f.recorder,
	})
	assert.ErrorIs(t, err, ErrInvalidFrame)
	assert.Zero(t, src.Acquired())
}

type blockingSource struct {
	opened chan struct{}
	once   sync.Once
}

func (s *blockingSource) Open(context.Context) (capture.Stream, error) {
	s.once.Do(func() { close(s.opened) })
	return blockingStream{}, nil
}

type blockingStream struct{}

func (blockingStream) Next(ctx context.Context) (*capture.Frame, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingStream) Close() error { return nil }

func TestStation_OneSessionAtATime(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice")
	f.train(t)

	src := &blockingSource{opened: make(chan struct{})}
	st := &Station{Source: src, Locator: &stubLocator{}, Model: f.handle, Recorder: f.recorder, Timeout: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := st.Mark(ctx, 0)
		done <- err
	}()
	<-src.opened

	_, err := st.Mark(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrStationBusy)

	cancel()
	require.NoError(t, <-done)

	present, err := st.Status(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestStation_Reload(t *testing.T) {
	f := newFixture(t)
	st := &Station{Model: f.handle, ModelPath: f.modelPath}

	_, err := st.Reload()
	assert.ErrorIs(t, err, ErrModelNotAvailable)

	f.enroll(t, "alice")
	_, err = Train(context.Background(), TrainOptions{Store: f.store, ModelPath: f.modelPath})
	require.NoError(t, err)

	v, err := st.Reload()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v.Number)

	require.NoError(t, os.WriteFile(f.modelPath, []byte("junk"), 0o644))
	_, err = st.Reload()
	assert.ErrorIs(t, err, ErrArtifactCorrupt)
	cur, err := f.handle.Acquire()
	require.NoError(t, err)
	assert.Same(t, v, cur)
}
