package source

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	playererrors "github.com/mantonx/reelplay/internal/modules/playermodule/errors"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

type nameRecorder struct {
	mu    sync.Mutex
	names map[int]string
}

func (n *nameRecorder) SourceNameChanged(sourceID int, name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.names == nil {
		n.names = make(map[int]string)
	}
	n.names[sourceID] = name
}

func blankInput(length string) types.PlayerInput {
	in := types.NewInput(types.InputBlank, "")
	if length != "" {
		in = in.WithOption(types.OptBlankLength, length)
	}
	return in
}

func TestBlank_Defaults(t *testing.T) {
	b, err := NewBlank(blankInput("3"), types.StreamInfo{})
	require.NoError(t, err)

	streams := b.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, types.FormatUYVY, streams[0].Format)
	assert.Equal(t, 720, streams[0].Width)
	assert.True(t, streams[0].Synthetic)
	assert.Equal(t, int64(3), b.Length())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f, err := b.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(i), f.Position)
		data, ok := f.Stream(0)
		require.True(t, ok)
		assert.Len(t, data, 720*576*2)
	}
	_, err = b.Read(ctx)
	assert.ErrorIs(t, err, playererrors.ErrEndOfSource)
	assert.True(t, b.EOF())

	require.NoError(t, b.Seek(1))
	assert.False(t, b.EOF())
	require.NoError(t, b.Close())
	_, err = b.Read(ctx)
	assert.ErrorIs(t, err, playererrors.ErrClosed)
}

func TestBlank_MatchesTemplateAndOptions(t *testing.T) {
	prior := types.StreamInfo{
		ID: 4, SourceID: 2, Type: types.PictureStream, Format: types.FormatYUV420,
		FrameRate: types.Rate50, Width: 1920, Height: 1080, AspectRatio: types.Aspect16x9,
	}
	b, err := NewBlank(blankInput(""), prior)
	require.NoError(t, err)
	s := b.Streams()[0]
	assert.Equal(t, types.FormatYUV420, s.Format)
	assert.Equal(t, 1920, s.Width)
	assert.Equal(t, 0, s.ID)
	assert.Equal(t, 0, s.SourceID)
	assert.Equal(t, int64(-1), b.Length())

	sound, err := NewBlank(blankInput("").WithOption(types.OptStreamType, "sound"), prior)
	require.NoError(t, err)
	s = sound.Streams()[0]
	assert.Equal(t, types.SoundStream, s.Type)
	assert.True(t, s.FrameRate.Equal(types.Rate50))
	assert.Equal(t, 48000/50*2, s.FrameSize())

	_, err = NewBlank(blankInput("").WithOption(types.OptWidth, "abc"), prior)
	assert.Error(t, err)
}

func TestRaw_ReadsFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.yuv")
	frameSize := 4 * 2 * 2
	data := make([]byte, frameSize*3)
	for i := range data {
		data[i] = byte(i / frameSize)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))

	in := types.NewInput(types.InputRaw, path).
		WithOption(types.OptWidth, "4").
		WithOption(types.OptHeight, "2")
	r, err := OpenRaw(in)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, int64(3), r.Length())
	assert.Equal(t, "clip.yuv", SourceName(r.Streams()[0]))

	require.NoError(t, r.Seek(2))
	f, err := r.Read(context.Background())
	require.NoError(t, err)
	payload, _ := f.Stream(0)
	assert.Equal(t, byte(2), payload[0])

	_, err = r.Read(context.Background())
	assert.ErrorIs(t, err, playererrors.ErrEndOfSource)

	_, err = OpenRaw(types.NewInput(types.InputRaw, filepath.Join(t.TempDir(), "missing")))
	assert.Error(t, err)
}

func TestMultiple_FanIn(t *testing.T) {
	logger := hclog.NewNullLogger()
	m := NewMultiple(logger)

	a, err := NewBlank(blankInput("10"), types.StreamInfo{})
	require.NoError(t, err)
	b, err := NewBlank(blankInput("5").WithOption(types.OptStreamType, "sound"), types.StreamInfo{})
	require.NoError(t, err)
	m.Append(a, 0)
	m.Append(b, 1)

	streams := m.Streams()
	require.Len(t, streams, 2)
	assert.Equal(t, 0, streams[0].ID)
	assert.Equal(t, 0, streams[0].SourceID)
	assert.Equal(t, 1, streams[1].ID)
	assert.Equal(t, 1, streams[1].SourceID)
	assert.Equal(t, int64(5), m.Length())

	f, err := m.Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.Streams, 2)

	require.NoError(t, m.DisableStream(1))
	f, err = m.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, f.Streams, 1)
	assert.Equal(t, 0, f.Streams[0].StreamID)
	assert.Error(t, m.DisableStream(9))

	require.NoError(t, m.Seek(100))
	assert.Equal(t, int64(5), m.Position())
	assert.True(t, m.EOF())
	_, err = m.Read(context.Background())
	assert.ErrorIs(t, err, playererrors.ErrEndOfSource)

	require.NoError(t, m.Close())
}

func TestMultiple_SourceNameChangeUsesSourceID(t *testing.T) {
	m := NewMultiple(hclog.NewNullLogger())
	a, _ := NewBlank(blankInput(""), types.StreamInfo{})
	b, _ := NewBlank(blankInput(""), types.StreamInfo{})
	m.Append(a, 3)
	m.Append(b, 7)

	rec := &nameRecorder{}
	m.RegisterListener(rec)
	m.SetSourceName(7, "camera 2")

	assert.Equal(t, map[int]string{7: "camera 2"}, rec.names)
	assert.Equal(t, "camera 2", SourceName(m.Streams()[1]))
	assert.Equal(t, "", SourceName(m.Streams()[0]))

	m.SetClipID(3, "clip-a")
	assert.Equal(t, "clip-a", m.Streams()[0].ClipID)
}

func TestBuffered_ReadAheadAndSeek(t *testing.T) {
	b, err := NewBlank(blankInput("20"), types.StreamInfo{})
	require.NoError(t, err)
	buf := NewBuffered(b, 4, hclog.NewNullLogger())
	defer buf.Close()

	assert.Eventually(t, func() bool { return buf.Buffered() == 4 }, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	f, err := buf.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.Position)

	require.NoError(t, buf.Seek(15))
	assert.Equal(t, int64(15), buf.Position())
	for i := int64(15); i < 20; i++ {
		f, err = buf.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, f.Position)
	}
	_, err = buf.Read(ctx)
	assert.ErrorIs(t, err, playererrors.ErrEndOfSource)
	assert.True(t, buf.EOF())
}

func TestRegistry_OpenByKind(t *testing.T) {
	r := NewRegistry(hclog.NewNullLogger())
	assert.Equal(t, []types.InputKind{types.InputRaw, types.InputBlank}, r.Kinds())

	_, err := r.Open(context.Background(), types.NewInput(types.InputMXF, "a.mxf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, playererrors.ErrUnsupportedKind)
	assert.Equal(t, playererrors.ErrorTypeOpen, playererrors.GetType(err))

	opened := false
	require.NoError(t, r.Register(types.InputMXF, func(ctx context.Context, in types.PlayerInput, _ hclog.Logger) (Source, error) {
		opened = true
		return NewBlank(in, DefaultPicture())
	}))
	src, err := r.Open(context.Background(), types.NewInput(types.InputMXF, "a.mxf"))
	require.NoError(t, err)
	assert.True(t, opened)
	require.NoError(t, src.Close())

	assert.Error(t, r.Register(types.InputKind("vhs"), nil))
}
