package ffmpeg

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ZSC714725/clipdesk/internal/job"
)

func TestTrimArgs(t *testing.T) {
	b := NewBuilder("ffmpeg")
	j, err := b.Trim("in.mp4", "out.mp4", 12.5, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"-y", "-hide_banner", "-ss", "12.500", "-i", "in.mp4", "-t", "7.500", "-c", "copy", "-avoid_negative_ts", "1", "out.mp4"}
	if !reflect.DeepEqual(j.Argv, want) {
		t.Fatalf("argv = %v", j.Argv)
	}
	if j.Kind != job.KindTrim || j.DeclaredDuration != 7.5 || j.OutputPath != "out.mp4" {
		t.Fatalf("job = %+v", j)
	}
}

func TestTrimToEndUsesSourceDuration(t *testing.T) {
	j, err := NewBuilder("ffmpeg").Trim("in.mp4", "out.mp4", 10, 0, 70)
	if err != nil {
		t.Fatal(err)
	}
	if j.DeclaredDuration != 60 {
		t.Fatalf("duration = %v", j.DeclaredDuration)
	}
	for _, a := range j.Argv {
		if a == "-t" {
			t.Fatal("open-ended trim must not pass -t")
		}
	}
}

func TestTrimRejectsBadRange(t *testing.T) {
	b := NewBuilder("ffmpeg")
	for _, r := range [][2]float64{{10, 5}, {-1, 5}, {5, 5}} {
		if _, err := b.Trim("in.mp4", "out.mp4", r[0], r[1], 0); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("range %v: err = %v", r, err)
		}
	}
	if _, err := b.Trim("", "out.mp4", 0, 1, 0); !errors.Is(err, ErrNoInputs) {
		t.Fatalf("err = %v", err)
	}
}

func TestMergeArgs(t *testing.T) {
	j, err := NewBuilder("ffmpeg").Merge("/tmp/list.txt", []string{"a.mp4", "b.mp4"}, "out.mp4", 90, 2048)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"-y", "-hide_banner", "-f", "concat", "-safe", "0", "-i", "/tmp/list.txt", "-c", "copy", "-avoid_negative_ts", "1", "out.mp4"}
	if !reflect.DeepEqual(j.Argv, want) || j.ExpectedBytes != 2048 || j.DeclaredDuration != 90 {
		t.Fatalf("job = %+v", j)
	}
	if _, err := NewBuilder("ffmpeg").Merge("l", []string{"a"}, "o", 0, 0); !errors.Is(err, ErrNoInputs) {
		t.Fatalf("single input merge: %v", err)
	}
}

func TestBurnSubtitleDefaultEncoder(t *testing.T) {
	j, err := NewBuilder("ffmpeg").BurnSubtitle("in.mkv", `C:\subs\it's.ass`, "out.mp4", Encoding{BitrateKbps: 3000}, 60)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.Join(j.Argv, " ")
	for _, frag := range []string{
		`-vf subtitles='C\:/subs/it\'s.ass'`,
		"-c:v libx264 -preset medium -b:v 3000k",
		"-c:a aac",
		"-movflags +faststart",
	} {
		if !strings.Contains(line, frag) {
			t.Fatalf("argv %q missing %q", line, frag)
		}
	}
}

func TestBurnSubtitleHardwareEncoder(t *testing.T) {
	b := NewBuilder("ffmpeg")
	b.Available = func(e string) bool { return e == "h264_nvenc" }

	j, err := b.BurnSubtitle("in.mp4", "s.ass", "out.mkv", Encoding{Encoder: "h264_nvenc", BitrateKbps: 2000}, 0)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.Join(j.Argv, " ")
	if !strings.Contains(line, "-c:v h264_nvenc -b:v 2000k -maxrate 3000k -bufsize 4000k") {
		t.Fatalf("argv = %s", line)
	}
	if strings.Contains(line, "faststart") {
		t.Fatal("faststart only applies to mp4 outputs")
	}

	if _, err := b.BurnSubtitle("in.mp4", "s.ass", "out.mp4", Encoding{Encoder: "h264_qsv"}, 0); !errors.Is(err, ErrEncoderUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestAttachSubtitleContainer(t *testing.T) {
	b := NewBuilder("ffmpeg")
	mp4, _ := b.AttachSubtitle("in.mp4", "s.ass", "out.mp4", "", 10)
	mkv, _ := b.AttachSubtitle("in.mp4", "s.ass", "out.mkv", "eng", 10)

	if l := strings.Join(mp4.Argv, " "); !strings.Contains(l, "-map 0:v -map 0:a? -map 1:s -c:v copy -c:a copy -c:s mov_text -f mp4 -metadata:s:s:0 language=chi") {
		t.Fatalf("mp4 argv = %s", l)
	}
	if l := strings.Join(mkv.Argv, " "); !strings.Contains(l, "-c:s ass -f matroska -metadata:s:s:0 language=eng") {
		t.Fatalf("mkv argv = %s", l)
	}
}

func TestAudioFilters(t *testing.T) {
	cases := []struct {
		opts DenoiseOptions
		want string
	}{
		{DenoiseOptions{}, ""},
		{DenoiseOptions{PreserveVoice: true}, ""},
		{DenoiseOptions{Strength: 0.5}, "anlmdn=s=0.5"},
		{DenoiseOptions{Strength: 1, PreserveVoice: true}, "highpass=f=80,lowpass=f=8000,anlmdn=s=1"},
		{DenoiseOptions{BoostDB: 20}, "volume=10.0000"},
	}
	for _, c := range cases {
		if got := AudioFilters(c.opts); got != c.want {
			t.Fatalf("AudioFilters(%+v) = %q, want %q", c.opts, got, c.want)
		}
	}
}

func TestDenoiseCopiesAudioWithoutFilters(t *testing.T) {
	j, err := NewBuilder("ffmpeg").Denoise("in.mp4", "out.mp4", DenoiseOptions{}, 5)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"-y", "-hide_banner", "-i", "in.mp4", "-c:v", "copy", "-c:a", "copy", "out.mp4"}
	if !reflect.DeepEqual(j.Argv, want) {
		t.Fatalf("argv = %v", j.Argv)
	}
}

func TestExtractFrameArgs(t *testing.T) {
	b := NewBuilder("ffmpeg")
	b.HWAccel = "auto"
	j, err := b.ExtractFrame("in.mp4", "f.jpg", 3.25)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"-y", "-hide_banner", "-hwaccel", "auto", "-ss", "3.250", "-i", "in.mp4", "-frames:v", "1", "-q:v", "5", "-f", "image2", "f.jpg"}
	if !reflect.DeepEqual(j.Argv, want) || j.Kind != job.KindExtractFrame {
		t.Fatalf("job = %+v", j)
	}
}

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteConcatList(dir, []string{"/media/a.mp4", "/media/it's.mp4"})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("list written to %s", path)
	}
	want := "file '/media/a.mp4'\nfile '/media/it'\\''s.mp4'\n"
	if filepath.Separator == '/' && string(data) != want {
		t.Fatalf("list = %q", data)
	}
}

func TestParseProbeDuration(t *testing.T) {
	if d, err := ParseProbeDuration([]byte("123.456000\n")); err != nil || d != 123.456 {
		t.Fatalf("d = %v, err = %v", d, err)
	}
	for _, bad := range []string{"", "N/A\n", "abc"} {
		if _, err := ParseProbeDuration([]byte(bad)); err == nil {
			t.Fatalf("%q should fail", bad)
		}
	}
}

func TestParseProbeBitrate(t *testing.T) {
	cases := map[string]int{
		"2500000\n":     2500,
		"4999499\n":     4999,
		"128000\nN/A\n": 128,
	}
	for in, want := range cases {
		if got, err := ParseProbeBitrate([]byte(in)); err != nil || got != want {
			t.Fatalf("ParseProbeBitrate(%q) = %d, %v", in, got, err)
		}
	}
	for _, bad := range []string{"", "N/A\n", "12.5", "-3", "200"} {
		if _, err := ParseProbeBitrate([]byte(bad)); err == nil {
			t.Fatalf("%q should fail", bad)
		}
	}
}

func TestValidatorBlocksAndAllows(t *testing.T) {
	v, err := NewValidator([]string{"^/media/"}, []string{`\.exe$`})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Separator != '/' {
		t.Skip("posix paths")
	}
	cases := map[string]string{
		"/media/a.mp4":         "",
		"/media/../etc/passwd": "not matched by any allow rule",
		"/media/x.exe":         `blocked by \.exe$`,
		"/tmp/a.mp4":           "not matched by any allow rule",
		"":                     "empty path",
	}
	for path, want := range cases {
		err := v.Check(path)
		if want == "" {
			if err != nil {
				t.Fatalf("Check(%q) = %v", path, err)
			}
			continue
		}
		var pe *PathError
		if !errors.As(err, &pe) || pe.Path != path || pe.Reason != want {
			t.Fatalf("Check(%q) = %v, want %s", path, err, want)
		}
	}

	// the first refused path is reported
	err = v.Check("/media/a.mp4", "/tmp/b.mp4", "/media/c.exe")
	var pe *PathError
	if !errors.As(err, &pe) || pe.Path != "/tmp/b.mp4" {
		t.Fatalf("Check = %v", err)
	}
	if err := v.Check(); err != nil {
		t.Fatalf("no paths = %v", err)
	}

	if _, err := NewValidator([]string{"("}, nil); err == nil {
		t.Fatal("expected compile error")
	}
}
