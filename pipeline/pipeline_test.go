package pipeline

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/fragnorm/delegate"
	"github.com/grailbio/fragnorm/qc"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

const chromSizes = "chr1\t1000\nchr2\t1000\n"

func writeFile(t *testing.T, path, data string) {
	require.NoError(t, ioutil.WriteFile(path, []byte(data), 0644))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// writeFragments writes a fragment BED with n records alternating between
// chr2 and chr1, in descending start order.
func writeFragments(t *testing.T, path string, n int) {
	var b strings.Builder
	b.WriteString("chrom\tstart\tend\tname\n")
	for i := n; i > 0; i-- {
		chrom := "chr1"
		if i%2 == 0 {
			chrom = "chr2"
		}
		fmt.Fprintf(&b, "%s\t%d\t%d\tf%d\n", chrom, i*10, i*10+100, i)
	}
	writeFile(t, path, b.String())
}

func readLines(t *testing.T, path string) []string {
	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

// bedTools emulates bedtools, sort and bedGraphToBigWig.  fail, if set, picks
// commands that exit with an error.
func bedTools(fail func(delegate.Command) bool) func(delegate.Command) ([]byte, error) {
	return func(cmd delegate.Command) ([]byte, error) {
		if fail != nil && fail(cmd) {
			return nil, &delegate.ExitError{Command: cmd, Err: fmt.Errorf("exit status 1")}
		}
		last := cmd.Args[len(cmd.Args)-1]
		switch {
		case cmd.Name == bedtools && cmd.Args[0] == "makewindows":
			return []byte("chr1\t0\t50\nchr1\t50\t100\nchr2\t0\t50\n"), nil
		case cmd.Name == bedtools && cmd.Args[0] == "sort":
			return ioutil.ReadFile(last)
		case cmd.Name == bedtools && cmd.Args[0] == "coverage":
			return []byte("chr1\t0\t50\t3\nchr2\t0\t50\t1 extra\n"), nil
		case cmd.Name == coreutilsSort:
			return ioutil.ReadFile(last)
		case cmd.Name == bedGraphToBigWig:
			return nil, ioutil.WriteFile(last, []byte("bigwig"), 0644)
		}
		return nil, fmt.Errorf("unexpected command %v", cmd)
	}
}

type bedFixture struct {
	dir   string
	opts  Opts
	paths []string
}

// newBEDFixture creates one fragment BED per depth, named a.bed, b.bed, ...
func newBEDFixture(t *testing.T, dir string, depths ...int) bedFixture {
	f := bedFixture{dir: dir, opts: DefaultOpts}
	f.opts.ChromSizesPath = filepath.Join(dir, "genome.sizes")
	f.opts.OutDir = dir
	f.opts.Parallelism = 2
	f.opts.Seed = 7
	writeFile(t, f.opts.ChromSizesPath, chromSizes)
	for i, n := range depths {
		path := filepath.Join(dir, string(rune('a'+i))+".bed")
		writeFragments(t, path, n)
		f.paths = append(f.paths, path)
	}
	return f
}

func resultsByName(s Summary) map[string]TaskResult {
	m := make(map[string]TaskResult)
	for _, r := range s.Results {
		m[filepath.Base(r.Input)] = r
	}
	return m
}

func TestRunBED(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	f := newBEDFixture(t, dir, 12, 10, 15, 1)
	runner := &delegate.FakeRunner{Handler: bedTools(nil)}

	s, err := Run(context.Background(), &f.opts, f.paths, Env{Runner: runner})
	require.NoError(t, err)
	expect.EQ(t, s.QC.Target, int64(10))
	expect.EQ(t, len(s.QC.Excluded), 1)
	expect.EQ(t, filepath.Base(s.QC.Excluded[0].Path), "d.bed")
	expect.EQ(t, len(s.Results), 3)
	expect.EQ(t, s.Completed(), 3)

	for _, r := range s.Results {
		expect.EQ(t, r.State, Completed)
		expect.NoError(t, r.Err)
		expect.True(t, exists(r.Output))
		n := newNamer(r.Input, dir, 50)
		expect.EQ(t, r.Output, n.Track())
		for _, path := range []string{n.DownsampledBED(), n.SortedBED(), n.BinCounts(), n.BEDGraph(), n.SortedBEDGraph()} {
			expect.False(t, exists(path), path)
		}
	}
	expect.False(t, exists(newNamer(f.paths[3], dir, 50).Track()))
	// The bins file is shared and stays.
	expect.True(t, exists(binsPath(dir, 50)))

	var makewindows int
	for _, cmd := range runner.Commands() {
		if cmd.Name == bedtools && cmd.Args[0] == "makewindows" {
			makewindows++
			expect.EQ(t, cmd.Args, []string{"makewindows", "-g", f.opts.ChromSizesPath, "-w", "50"})
		}
	}
	expect.EQ(t, makewindows, 1)
}

func TestRunBEDKeepIntermediates(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	f := newBEDFixture(t, dir, 30, 20, 25)
	f.opts.KeepIntervalIntermediates = true
	runner := &delegate.FakeRunner{Handler: bedTools(nil)}

	s, err := Run(context.Background(), &f.opts, f.paths, Env{Runner: runner})
	require.NoError(t, err)
	require.Equal(t, int64(20), s.QC.Target)
	for _, r := range s.Results {
		n := newNamer(r.Input, dir, 50)
		lines := readLines(t, n.DownsampledBED())
		expect.EQ(t, lines[0], "chrom\tstart\tend\tname")
		records := lines[1:]
		assert.EQ(t, len(records), 20)
		prevChrom, prevStart := "chr1", -1
		for _, line := range records {
			fields := strings.Split(line, "\t")
			start, err := strconv.Atoi(fields[1])
			require.NoError(t, err)
			if fields[0] != prevChrom {
				expect.EQ(t, prevChrom, "chr1")
				expect.EQ(t, fields[0], "chr2")
				prevChrom, prevStart = fields[0], -1
			}
			expect.GT(t, start, prevStart, line)
			prevStart = start
		}
		expect.EQ(t, readLines(t, n.BEDGraph()), []string{"chr1\t0\t50\t3", "chr2\t0\t50\t1"})
		expect.True(t, exists(n.SortedBED()))
		expect.True(t, exists(n.BinCounts()))
		expect.True(t, exists(n.SortedBEDGraph()))
	}
}

func TestRunBEDReproducible(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	var samples [2][]string
	for i := range samples {
		sub := filepath.Join(dir, strconv.Itoa(i))
		require.NoError(t, os.Mkdir(sub, 0755))
		f := newBEDFixture(t, sub, 40, 20)
		f.opts.KeepIntervalIntermediates = true
		_, err := Run(context.Background(), &f.opts, f.paths, Env{Runner: &delegate.FakeRunner{Handler: bedTools(nil)}})
		require.NoError(t, err)
		samples[i] = readLines(t, newNamer(f.paths[0], sub, 50).DownsampledBED())
	}
	expect.EQ(t, samples[0], samples[1])
}

func TestRunBEDFailureIsolation(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	f := newBEDFixture(t, dir, 10, 10, 10)
	failing := newNamer(f.paths[1], dir, 50)
	runner := &delegate.FakeRunner{Handler: bedTools(func(cmd delegate.Command) bool {
		return cmd.Name == bedtools && cmd.Args[0] == "coverage" && cmd.Args[len(cmd.Args)-2] == failing.SortedBED()
	})}

	s, err := Run(context.Background(), &f.opts, f.paths, Env{Runner: runner})
	require.NoError(t, err)
	results := resultsByName(s)
	expect.EQ(t, results["a.bed"].State, Completed)
	expect.EQ(t, results["c.bed"].State, Completed)
	b := results["b.bed"]
	expect.EQ(t, b.State, Failed)
	expect.HasSubstr(t, b.Err.Error(), "counting failed")
	expect.EQ(t, b.Output, "")
	expect.False(t, exists(failing.Track()))
	expect.False(t, exists(failing.DownsampledBED()))
	expect.False(t, exists(failing.SortedBED()))
	expect.EQ(t, s.Completed(), 2)
}

func TestRunBEDBinsFailure(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	f := newBEDFixture(t, dir, 10, 10)
	runner := &delegate.FakeRunner{Handler: bedTools(func(cmd delegate.Command) bool {
		return cmd.Args[0] == "makewindows"
	})}
	s, err := Run(context.Background(), &f.opts, f.paths, Env{Runner: runner})
	assert.NotNil(t, err)
	expect.EQ(t, len(s.Results), 0)
}

func TestRunBEDReusesBins(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	f := newBEDFixture(t, dir, 10, 10)
	writeFile(t, binsPath(dir, 50), "chr1\t0\t50\n")
	runner := &delegate.FakeRunner{Handler: bedTools(nil)}
	_, err := Run(context.Background(), &f.opts, f.paths, Env{Runner: runner})
	require.NoError(t, err)
	for _, cmd := range runner.Commands() {
		expect.False(t, cmd.Name == bedtools && cmd.Args[0] == "makewindows")
	}
}

func TestRunNoInputs(t *testing.T) {
	runner := &delegate.FakeRunner{}
	opts := DefaultOpts
	_, err := Run(context.Background(), &opts, nil, Env{Runner: runner})
	assert.NotNil(t, err)
	expect.True(t, errors.Is(errors.Invalid, err))
	expect.EQ(t, len(runner.Commands()), 0)
}

func TestRunNoneIncluded(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	f := newBEDFixture(t, dir, 10, 20, 30)
	f.opts.ExcludeSD = -10
	f.opts.QCReportPath = filepath.Join(dir, "qc.tsv")
	runner := &delegate.FakeRunner{Handler: bedTools(nil)}

	s, err := Run(context.Background(), &f.opts, f.paths, Env{Runner: runner})
	assert.NotNil(t, err)
	expect.True(t, errors.Is(errors.Precondition, err))
	expect.EQ(t, len(s.Results), 0)
	expect.EQ(t, len(s.QC.Excluded), 3)
	expect.EQ(t, len(runner.Commands()), 0)
	expect.False(t, exists(binsPath(dir, 50)))
	// The QC report is still written.
	expect.True(t, exists(f.opts.QCReportPath))
}

func TestRunArtifactCollision(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	f := newBEDFixture(t, dir, 10)
	for _, sub := range []string{"runA", "runB"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, sub), 0755))
		path := filepath.Join(dir, sub, "s.bed")
		writeFragments(t, path, 10)
		f.paths = append(f.paths, path)
	}
	f.opts.OutDir = filepath.Join(dir, "out")
	runner := &delegate.FakeRunner{Handler: bedTools(nil)}

	s, err := Run(context.Background(), &f.opts, f.paths, Env{Runner: runner})
	assert.NotNil(t, err)
	expect.True(t, errors.Is(errors.Invalid, err))
	expect.HasSubstr(t, err.Error(), "s.bed_50bp.bw")
	expect.EQ(t, len(s.Results), 0)
	expect.EQ(t, len(runner.Commands()), 0)
	expect.False(t, exists(f.opts.OutDir))
}

func TestCheckArtifactNames(t *testing.T) {
	bed := DefaultOpts
	bam := DefaultOpts
	bam.Format = BAM
	for _, tt := range []struct {
		opts  Opts
		paths []string
		ok    bool
	}{
		{bed, []string{"/a/s.bed", "/b/s.bed"}, true},
		{bed, []string{"/a/s.bed", "/a/s.bed"}, false},
		{bed, []string{"/a/s.bed", "/a/./s.bed"}, false},
		// Both stems are "s".
		{bed, []string{"/a/s.bed", "/a/s.txt"}, false},
		{bam, []string{"/a/s.bam", "/a/s.cram"}, true},
		{bam, []string{"/a/s.bam", "/b/s.bam"}, true},
	} {
		err := checkArtifactNames(&tt.opts, tt.paths)
		expect.EQ(t, err == nil, tt.ok, tt.paths)
		if err != nil {
			expect.True(t, errors.Is(errors.Invalid, err))
		}
	}
	out := bam
	out.OutDir = "/out"
	expect.NotNil(t, checkArtifactNames(&out, []string{"/a/s.bam", "/b/s.bam"}))
}

func TestRunMissingChromSizes(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	f := newBEDFixture(t, dir, 10)
	f.opts.ChromSizesPath = filepath.Join(dir, "missing.sizes")
	_, err := Run(context.Background(), &f.opts, f.paths, Env{Runner: &delegate.FakeRunner{}})
	assert.NotNil(t, err)
}

type bamFixture struct {
	mu      sync.Mutex
	depths  map[string]string
	written []string
}

// handle emulates samtools and bamCoverage.  Every downsampled BAM and index
// it produces is recorded.
func (b *bamFixture) handle(fail func(delegate.Command) bool) func(delegate.Command) ([]byte, error) {
	return func(cmd delegate.Command) ([]byte, error) {
		if fail != nil && fail(cmd) {
			return nil, &delegate.ExitError{Command: cmd, Err: fmt.Errorf("exit status 1")}
		}
		last := cmd.Args[len(cmd.Args)-1]
		b.mu.Lock()
		defer b.mu.Unlock()
		switch {
		case cmd.Name == "samtools" && cmd.Args[0] == "view" && cmd.Args[1] == "-c":
			return []byte(b.depths[filepath.Base(last)] + "\n"), nil
		case cmd.Name == "samtools" && cmd.Args[0] == "view":
			b.written = append(b.written, cmd.Stdout)
			return []byte("BAM"), nil
		case cmd.Name == "samtools" && cmd.Args[0] == "index":
			b.written = append(b.written, last+".bai")
			return nil, ioutil.WriteFile(last+".bai", []byte("BAI"), 0644)
		case cmd.Name == bamCoverage:
			for i, arg := range cmd.Args {
				if arg == "-o" {
					return nil, ioutil.WriteFile(cmd.Args[i+1], []byte("bigwig"), 0644)
				}
			}
		}
		return nil, fmt.Errorf("unexpected command %v", cmd)
	}
}

func newBAMInputs(t *testing.T, dir string, names ...string) []string {
	var paths []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		writeFile(t, path, "")
		paths = append(paths, path)
	}
	return paths
}

// findSubsample returns the "samtools view -b" command for the given input.
func findSubsample(cmds []delegate.Command, input string) (delegate.Command, bool) {
	for _, cmd := range cmds {
		if cmd.Name == "samtools" && cmd.Args[1] == "-b" && cmd.Args[len(cmd.Args)-1] == input {
			return cmd, true
		}
	}
	return delegate.Command{}, false
}

func TestRunBAM(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	paths := newBAMInputs(t, dir, "x.bam", "y.bam")
	fx := &bamFixture{depths: map[string]string{"x.bam": "1000", "y.bam": "4000"}}
	runner := &delegate.FakeRunner{Handler: fx.handle(nil)}
	opts := DefaultOpts
	opts.Format = BAM
	opts.BlacklistPath = "/ref/blacklist.bed"

	s, err := Run(context.Background(), &opts, paths, Env{Runner: runner})
	require.NoError(t, err)
	expect.EQ(t, s.QC.Target, int64(1000))
	expect.EQ(t, s.Completed(), 2)

	cmds := runner.Commands()
	// The smallest file is copied through without subsampling.
	x, ok := findSubsample(cmds, paths[0])
	require.True(t, ok)
	expect.EQ(t, x.Args, []string{"view", "-b", "-f", "2", "-F", "260", paths[0]})
	y, ok := findSubsample(cmds, paths[1])
	require.True(t, ok)
	expect.EQ(t, y.Args, []string{"view", "-b", "-s", "42.25", "-f", "2", "-F", "260", paths[1]})
	expect.EQ(t, y.Stdout, filepath.Join(dir, "y.bam_downsampled.bam"))

	var coverage int
	for _, cmd := range cmds {
		if cmd.Name != bamCoverage {
			continue
		}
		coverage++
		expect.EQ(t, cmd.Args[:2], []string{"-p", "1"})
		expect.HasSubstr(t, strings.Join(cmd.Args, " "), "--binSize 50 --normalizeUsing None")
		expect.EQ(t, cmd.Args[len(cmd.Args)-2:], []string{"--blackListFileName", "/ref/blacklist.bed"})
	}
	expect.EQ(t, coverage, 2)

	for _, r := range s.Results {
		expect.True(t, exists(r.Output))
	}
	for _, path := range fx.written {
		expect.False(t, exists(path), path)
	}
}

func TestRunBAMKeepIntermediates(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	paths := newBAMInputs(t, dir, "x.bam", "y.bam")
	fx := &bamFixture{depths: map[string]string{"x.bam": "100", "y.bam": "100"}}
	opts := DefaultOpts
	opts.Format = BAM
	opts.Seed = 9
	opts.KeepAlignmentIntermediates = true
	runner := &delegate.FakeRunner{Handler: fx.handle(nil)}

	s, err := Run(context.Background(), &opts, paths, Env{Runner: runner})
	require.NoError(t, err)
	expect.EQ(t, s.Completed(), 2)
	require.True(t, len(fx.written) > 0)
	for _, path := range fx.written {
		expect.True(t, exists(path), path)
	}
	for _, cmd := range runner.Commands() {
		expect.False(t, strings.Contains(strings.Join(cmd.Args, " "), "--blackListFileName"))
	}
}

func TestRunBAMCountFailure(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	paths := newBAMInputs(t, dir, "x.bam")
	fx := &bamFixture{}
	opts := DefaultOpts
	opts.Format = BAM
	runner := &delegate.FakeRunner{Handler: fx.handle(func(cmd delegate.Command) bool { return true })}

	_, err := Run(context.Background(), &opts, paths, Env{Runner: runner})
	assert.NotNil(t, err)
	expect.True(t, errors.Is(errors.Unavailable, err))
}

func TestRunBAMFailureIsolation(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	paths := newBAMInputs(t, dir, "x.bam", "y.bam")
	fx := &bamFixture{depths: map[string]string{"x.bam": "100", "y.bam": "200"}}
	opts := DefaultOpts
	opts.Format = BAM
	runner := &delegate.FakeRunner{Handler: fx.handle(func(cmd delegate.Command) bool {
		return cmd.Args[0] == "index" && strings.Contains(cmd.Args[1], "y.bam")
	})}

	s, err := Run(context.Background(), &opts, paths, Env{Runner: runner})
	require.NoError(t, err)
	results := resultsByName(s)
	expect.EQ(t, results["x.bam"].State, Completed)
	expect.EQ(t, results["y.bam"].State, Failed)
	expect.HasSubstr(t, results["y.bam"].Err.Error(), "sorting failed")
	expect.False(t, exists(filepath.Join(dir, "y.bam_downsampled.bam")))
	for _, cmd := range runner.Commands() {
		if cmd.Name == bamCoverage {
			expect.False(t, strings.Contains(strings.Join(cmd.Args, " "), "y.bam"))
		}
	}
}

func TestObserverEvents(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	f := newBEDFixture(t, dir, 10, 10)
	failing := newNamer(f.paths[1], dir, 50)
	runner := &delegate.FakeRunner{Handler: bedTools(func(cmd delegate.Command) bool {
		return cmd.Name == bedGraphToBigWig && cmd.Args[0] == failing.SortedBEDGraph()
	})}
	var (
		mu     sync.Mutex
		events = make(map[string][]State)
	)
	observer := ObserverFunc(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events[filepath.Base(e.Path)] = append(events[filepath.Base(e.Path)], e.State)
		expect.EQ(t, e.Steps, 6)
		if e.State == Failed {
			expect.NotNil(t, e.Err)
		}
	})

	_, err := Run(context.Background(), &f.opts, f.paths, Env{Runner: runner, Observer: observer})
	require.NoError(t, err)
	expect.EQ(t, events["a.bed"], []State{Queued, Sampling, LocalWrite, NormalizeOrder, CoverageCompute, TrackEncode, Cleanup, Completed})
	expect.EQ(t, events["b.bed"], []State{Queued, Sampling, LocalWrite, NormalizeOrder, CoverageCompute, TrackEncode, Cleanup, Failed})
}

func TestOrchestratorEmpty(t *testing.T) {
	opts := DefaultOpts
	opts.Format = BAM
	o := NewOrchestrator(&opts, &delegate.FakeRunner{}, nil, 0, nil)
	require.NoError(t, o.Prepare(context.Background()))
	expect.EQ(t, len(o.Run(context.Background(), []qc.Input{})), 0)
}
