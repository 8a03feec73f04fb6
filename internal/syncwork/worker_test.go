package syncwork

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lockstep/internal/codec"
)

type sample struct {
	ID    int32
	Name  string
	Tags  []string
	Stock map[string]int32
	Blob  []byte
}

func (s *sample) Describe(w *Worker) error {
	if err := w.BindInt32("id", &s.ID); err != nil {
		return err
	}
	if err := w.BindString("name", &s.Name); err != nil {
		return err
	}
	if err := BindSlice(w, "tags", &s.Tags, String); err != nil {
		return err
	}
	if err := BindMap(w, "stock", &s.Stock, String, Int32); err != nil {
		return err
	}
	return w.BindBytes("blob", &s.Blob)
}

func newSample() *sample {
	return &sample{
		ID:    7,
		Name:  "caravan",
		Tags:  []string{"a", "b"},
		Stock: map[string]int32{"wood": 5, "steel": 2},
		Blob:  []byte{1, 2, 3},
	}
}

type point struct {
	X, Y int32
}

func (p *point) Describe(w *Worker) error {
	if err := w.BindInt32("x", &p.X); err != nil {
		return err
	}
	return w.BindInt32("y", &p.Y)
}

func (p *point) SyncTag() Tag { return 1 }

type label struct {
	Text string
}

func (l *label) Describe(w *Worker) error { return w.BindString("text", &l.Text) }

func (l *label) SyncTag() Tag { return 2 }

func TestWorker_RoundTrip(t *testing.T) {
	in := newSample()

	data, err := Encode(in)
	require.NoError(t, err)

	out := &sample{}
	require.NoError(t, Decode(data, out))
	assert.Equal(t, in, out)
}

func TestWorker_ListPreservesOrder(t *testing.T) {
	in := &sample{Tags: []string{"z", "a", "m"}, Stock: map[string]int32{}}

	data, err := Encode(in)
	require.NoError(t, err)

	out := &sample{}
	require.NoError(t, Decode(data, out))
	assert.Equal(t, []string{"z", "a", "m"}, out.Tags)
}

func TestBindMap_EncodingIndependentOfInsertionOrder(t *testing.T) {
	a := map[int32]string{}
	b := map[int32]string{}
	for i := int32(0); i < 50; i++ {
		a[i] = "v"
		b[49-i] = "v"
	}

	encode := func(m map[int32]string) []byte {
		w := NewWriter()
		require.NoError(t, BindMap(w, "m", &m, Int32, String))
		return w.Bytes()
	}

	first := encode(a)
	for range 10 {
		assert.Equal(t, first, encode(a))
		assert.Equal(t, first, encode(b))
	}
}

func TestBindMap_StringKeysRoundTripExactly(t *testing.T) {
	in := map[string]int32{"\u00e9": 1, "e": 2, "\u00e8": 3}
	w := NewWriter()
	require.NoError(t, BindMap(w, "m", &in, String, Int32))

	var out map[string]int32
	r := NewReader(w.Bytes())
	require.NoError(t, BindMap(r, "m", &out, String, Int32))
	require.NoError(t, r.Done())
	assert.Equal(t, in, out)
}

func TestBindMap_KeysThatNormalizeAlikeAreRejectedOnWrite(t *testing.T) {
	in := map[string]int32{"\u00e9": 1, "e\u0301": 2}
	w := NewWriter()
	err := BindMap(w, "m", &in, String, Int32)
	require.Error(t, err)
	assert.True(t, codec.IsFormat(err))
}

func TestBindSet_RoundTrip(t *testing.T) {
	in := map[int64]struct{}{9: {}, -3: {}, 4: {}}
	w := NewWriter()
	require.NoError(t, BindSet(w, "s", &in, Int64))

	var out map[int64]struct{}
	r := NewReader(w.Bytes())
	require.NoError(t, BindSet(r, "s", &out, Int64))
	require.NoError(t, r.Done())
	assert.Equal(t, in, out)
}

func TestBindMap_DuplicateKeyIsFormatError(t *testing.T) {
	cw := codec.NewWriter()
	cw.WriteUvarint(2)
	cw.WriteInt32(1)
	cw.WriteInt32(10)
	cw.WriteInt32(1)
	cw.WriteInt32(11)

	var m map[int32]int32
	err := BindMap(NewReader(cw.Bytes()), "m", &m, Int32, Int32)
	require.Error(t, err)
	assert.True(t, codec.IsFormat(err))
	assert.Nil(t, m, "map must not be assigned on failure")
}

func TestBindOptional(t *testing.T) {
	present := &point{X: 1, Y: 2}
	var absent *point

	w := NewWriter()
	elem := func(w *Worker, p *point) error { return w.Bind("point", p) }
	require.NoError(t, BindOptional(w, "a", &present, elem))
	require.NoError(t, BindOptional(w, "b", &absent, elem))

	var gotA, gotB *point
	gotB = &point{}
	r := NewReader(w.Bytes())
	require.NoError(t, BindOptional(r, "a", &gotA, elem))
	require.NoError(t, BindOptional(r, "b", &gotB, elem))
	require.NoError(t, r.Done())

	assert.Equal(t, present, gotA)
	assert.Nil(t, gotB)
}

func TestBindAny_RoundTrip(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(1, func() Tagged { return &point{} })
	reg.MustRegister(2, func() Tagged { return &label{} })

	values := []Tagged{&point{X: 3, Y: 4}, &label{Text: "ritual"}, nil}

	w := NewWriter(WithRegistry(reg))
	for i := range values {
		require.NoError(t, w.BindAny("v", &values[i]))
	}

	r := NewReader(w.Bytes(), WithRegistry(reg))
	for _, want := range values {
		var got Tagged
		require.NoError(t, r.BindAny("v", &got))
		assert.Equal(t, want, got)
	}
	require.NoError(t, r.Done())
}

func TestBindAny_UnregisteredTypeOnWrite(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(1, func() Tagged { return &point{} })

	var v Tagged = &label{Text: "x"}
	w := NewWriter(WithRegistry(reg))
	err := w.BindAny("v", &v)

	require.Error(t, err)
	assert.True(t, IsSyncType(err))
	assert.Zero(t, len(w.Bytes()), "nothing may be written for an undescribable value")
}

func TestBindAny_UnknownTagOnRead(t *testing.T) {
	cw := codec.NewWriter()
	cw.WriteUint16(99)

	var v Tagged
	r := NewReader(cw.Bytes(), WithRegistry(NewRegistry()))
	err := r.BindAny("v", &v)

	require.Error(t, err)
	assert.True(t, IsSyncType(err))
	assert.Nil(t, v)
}

func TestBindValue(t *testing.T) {
	var (
		i   int32   = -4
		s           = "x"
		f   float64 = 1.5
		raw         = []byte{7}
		p           = point{X: 1}
	)
	w := NewWriter()
	require.NoError(t, w.BindValue("i", &i))
	require.NoError(t, w.BindValue("s", &s))
	require.NoError(t, w.BindValue("f", &f))
	require.NoError(t, w.BindValue("raw", &raw))
	require.NoError(t, w.BindValue("p", &p))

	var (
		gi   int32
		gs   string
		gf   float64
		graw []byte
		gp   point
	)
	r := NewReader(w.Bytes())
	require.NoError(t, r.BindValue("i", &gi))
	require.NoError(t, r.BindValue("s", &gs))
	require.NoError(t, r.BindValue("f", &gf))
	require.NoError(t, r.BindValue("raw", &graw))
	require.NoError(t, r.BindValue("p", &gp))

	assert.Equal(t, i, gi)
	assert.Equal(t, s, gs)
	assert.Equal(t, f, gf)
	assert.Equal(t, raw, graw)
	assert.Equal(t, p, gp)
}

func TestBindValue_UnsupportedTypeFailsFast(t *testing.T) {
	w := NewWriter()
	var c complex128
	err := w.BindValue("c", &c)

	require.Error(t, err)
	assert.True(t, IsSyncType(err))

	// Sticky: later binds refuse to run.
	var i int32 = 1
	assert.Error(t, w.BindInt32("i", &i))
	assert.Zero(t, len(w.Bytes()))
}

func TestDecode_TruncatedInputNeverSucceeds(t *testing.T) {
	data, err := Encode(newSample())
	require.NoError(t, err)

	for n := 0; n < len(data); n++ {
		out := &sample{}
		err := Decode(data[:n], out)
		require.Error(t, err, "prefix of %d bytes", n)
		assert.True(t, codec.IsTruncated(err), "prefix of %d bytes: %v", n, err)
	}
}

func TestDecode_TrailingBytes(t *testing.T) {
	data, err := Encode(newSample())
	require.NoError(t, err)

	err = Decode(append(data, 0), &sample{})
	require.Error(t, err)
	assert.True(t, codec.IsFormat(err))
}

func TestBindSlice_OversizedCount(t *testing.T) {
	cw := codec.NewWriter()
	cw.WriteUvarint(5)

	var s []int32
	r := NewReader(cw.Bytes(), WithLimits(codec.Limits{MaxCollection: 4}))
	err := BindSlice(r, "s", &s, Int32)
	require.Error(t, err)
	assert.True(t, codec.IsFormat(err))
}

func TestTrace_Golden(t *testing.T) {
	trace := NewTrace()
	w := NewWriter(WithTrace(trace))
	require.NoError(t, w.Bind("sample", newSample()))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "trace_sample", []byte(trace.String()))
}

func TestTrace_ReadMatchesWrite(t *testing.T) {
	wt := NewTrace()
	w := NewWriter(WithTrace(wt))
	require.NoError(t, w.Bind("sample", newSample()))

	rt := NewTrace()
	r := NewReader(w.Bytes(), WithTrace(rt))
	require.NoError(t, r.Bind("sample", &sample{}))

	assert.Equal(t, wt.String(), rt.String())
}

func TestTrace_PauseSuppressesRecords(t *testing.T) {
	trace := NewTrace()
	w := NewWriter(WithTrace(trace))

	var a, b, c int32 = 1, 2, 3
	require.NoError(t, w.BindInt32("a", &a))
	w.Pause()
	require.NoError(t, w.BindInt32("b", &b))
	w.Resume()
	require.NoError(t, w.BindInt32("c", &c))

	assert.Equal(t, "a: int32 = 1\nc: int32 = 3\n", trace.String())
}

func TestTrace_ExitAcrossPauseClosesItsNode(t *testing.T) {
	trace := NewTrace()
	trace.Enter("outer")
	trace.Pause()
	trace.Enter("hidden")
	trace.Exit()
	trace.Exit()
	trace.Resume()
	trace.Record("after", "int32", "1")

	assert.Equal(t, "outer\nafter: int32 = 1\n", trace.String())
}

func TestRegistry_RejectsDuplicateAndZero(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(1, func() Tagged { return &point{} }))
	assert.Error(t, reg.Register(1, func() Tagged { return &point{} }))
	assert.Error(t, reg.Register(0, func() Tagged { return &point{} }))
	assert.Equal(t, []Tag{1}, reg.Tags())
}

func TestDescribeFunc(t *testing.T) {
	var n int32 = 7
	data, err := Encode(DescribeFunc(func(w *Worker) error { return w.BindInt32("n", &n) }))
	require.NoError(t, err)

	var got int32
	require.NoError(t, Decode(data, DescribeFunc(func(w *Worker) error { return w.BindInt32("n", &got) })))
	assert.Equal(t, int32(7), got)
}
