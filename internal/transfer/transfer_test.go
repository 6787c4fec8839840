// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package transfer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ga-tools/poliops-transfer/internal/catalog"
	"github.com/ga-tools/poliops-transfer/internal/config"
	"github.com/ga-tools/poliops-transfer/internal/remote"
	"github.com/ga-tools/poliops-transfer/internal/store"
	"go.uber.org/zap/zaptest"
)

// fakeShell answers Run from a result table and Stream from a content table.
// Unknown commands exit 2 with no output, the way ls does for a missing file.
type fakeShell struct {
	results  map[string]*remote.Result
	streams  map[string]string
	failOn   string
	commands []string
}

func (f *fakeShell) Run(_ context.Context, command string) (*remote.Result, error) {
	f.commands = append(f.commands, command)
	if command == f.failOn {
		return nil, remote.ErrNotConnected
	}
	if r, ok := f.results[command]; ok {
		return &remote.Result{Stdout: r.Stdout, ExitCode: r.ExitCode}, nil
	}
	return &remote.Result{ExitCode: 2}, nil
}

func (f *fakeShell) Stream(_ context.Context, command string, fn func(io.Reader) error) (int, error) {
	f.commands = append(f.commands, command)
	content, ok := f.streams[command]
	if !ok {
		return 1, fn(strings.NewReader(""))
	}
	return 0, fn(strings.NewReader(content))
}

func (f *fakeShell) ran(prefix string) []string {
	var out []string
	for _, c := range f.commands {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

type auditRow struct {
	path   string
	n      int
	status string
}

type fakeRecorder struct {
	rows []auditRow
	err  error
}

func (f *fakeRecorder) RecordCopy(_ context.Context, pathname string, n int) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, auditRow{pathname, n, store.StatusCopied})
	return nil
}

func (f *fakeRecorder) RecordFoundNotCopied(_ context.Context, pathname string) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, auditRow{pathname, 0, store.StatusFoundNotCopied})
	return nil
}

type fakeArchiver struct {
	paths []string
	names []string
	err   error
}

func (f *fakeArchiver) Archive(_ context.Context, localPath, name string) error {
	f.paths = append(f.paths, localPath)
	f.names = append(f.names, name)
	return f.err
}

var runTime = time.Date(2024, time.March, 7, 14, 15, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.TransferConfig {
	root := t.TempDir()
	return &config.TransferConfig{
		TempDirectory:        filepath.Join(root, "stage"),
		DestinationDirectory: filepath.Join(root, "share"),
		Remote: config.Remote{
			Host:          "trfr.example.org",
			User:          "poliops",
			KeyName:       "id_rsa",
			Directory:     "/home/poliops/cr",
			DoneDirectory: "/home/poliops/cr/old",
		},
	}
}

func TestNameProspectiveFiles(t *testing.T) {
	cfg := testConfig(t)
	specs := NameProspectiveFiles(cfg, catalog.Default().CheckCompanies, runTime)

	if len(specs) != 3 {
		t.Fatalf("got %d specs, want 3", len(specs))
	}

	want := FileSpec{
		Company:       "COPE",
		RemotePath:    "/home/poliops/cr/cr-cope.csv",
		RemoteOldPath: "/home/poliops/cr/old/cr-cope.csv",
		LocalPath:     filepath.Join(cfg.TempDirectory, "COPE", "20240307-1415.txt"),
		SharePath:     filepath.Join(cfg.DestinationDirectory, "COPE", "20240307-1415.txt"),
	}
	if specs[1] != want {
		t.Errorf("specs[1] = %+v, want %+v", specs[1], want)
	}
	if specs[0].RemotePath != "/home/poliops/cr/cr-afl.csv" || specs[2].RemotePath != "/home/poliops/cr/cr-wpr.csv" {
		t.Errorf("unexpected order: %s, %s", specs[0].RemotePath, specs[2].RemotePath)
	}
}

func TestParseLineCount(t *testing.T) {
	tests := []struct {
		line   string
		want   int
		wantOK bool
	}{
		{"12 /home/poliops/cr/cr-afl.csv", 12, true},
		{"  1 cr-afl.csv", 1, true},
		{"0 cr-afl.csv", 0, true},
		{"2\tcr-afl.csv", 2, true},
		{"12", 0, false},
		{"twelve cr-afl.csv", 0, false},
		{"-1 cr-afl.csv", 0, false},
		{"3 my file.csv", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseLineCount(tt.line)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseLineCount(%q) = %d, %v; want %d, %v", tt.line, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestAvailableNonEmptyFiles(t *testing.T) {
	cfg := testConfig(t)
	specs := NameProspectiveFiles(cfg, []catalog.CheckCompany{
		{Abbreviation: "afl", DirectoryName: "AFLCIO"},
		{Abbreviation: "cope", DirectoryName: "COPE"},
		{Abbreviation: "wpr", DirectoryName: "WPR"},
		{Abbreviation: "zero", DirectoryName: "ZERO"},
		{Abbreviation: "odd", DirectoryName: "ODD"},
		{Abbreviation: "two", DirectoryName: "TWO"},
	}, runTime)

	shell := &fakeShell{results: map[string]*remote.Result{
		"ls '/home/poliops/cr/cr-afl.csv'":    {Stdout: []string{"/home/poliops/cr/cr-afl.csv"}},
		"wc -l '/home/poliops/cr/cr-afl.csv'": {Stdout: []string{"12 /home/poliops/cr/cr-afl.csv"}},
		"ls '/home/poliops/cr/cr-cope.csv'":   {Stdout: []string{"/home/poliops/cr/cr-cope.csv"}},
		"wc -l '/home/poliops/cr/cr-cope.csv'": {Stdout: []string{"1 /home/poliops/cr/cr-cope.csv"}},
		"ls '/home/poliops/cr/cr-zero.csv'":    {Stdout: []string{"/home/poliops/cr/cr-zero.csv"}},
		"wc -l '/home/poliops/cr/cr-zero.csv'": {Stdout: []string{"0 /home/poliops/cr/cr-zero.csv"}},
		"ls '/home/poliops/cr/cr-odd.csv'":     {Stdout: []string{"/home/poliops/cr/cr-odd.csv"}},
		"wc -l '/home/poliops/cr/cr-odd.csv'":  {Stdout: []string{"garbage"}},
		"ls '/home/poliops/cr/cr-two.csv'":     {Stdout: []string{"/home/poliops/cr/cr-two.csv"}},
		"wc -l '/home/poliops/cr/cr-two.csv'":  {Stdout: []string{"2 /home/poliops/cr/cr-two.csv"}},
	}}
	recorder := &fakeRecorder{}

	wanted, empty, err := AvailableNonEmptyFiles(context.Background(), shell, specs, recorder, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("AvailableNonEmptyFiles failed: %v", err)
	}

	var wantedPaths []string
	for _, s := range wanted {
		wantedPaths = append(wantedPaths, s.Company)
	}
	if strings.Join(wantedPaths, ",") != "AFLCIO,TWO" {
		t.Errorf("wanted = %v, want [AFLCIO TWO]", wantedPaths)
	}

	var emptyPaths []string
	for _, s := range empty {
		emptyPaths = append(emptyPaths, s.Company)
	}
	if strings.Join(emptyPaths, ",") != "COPE,ZERO,ODD" {
		t.Errorf("empty = %v, want [COPE ZERO ODD]", emptyPaths)
	}

	if len(recorder.rows) != 3 {
		t.Fatalf("got %d audit rows, want 3", len(recorder.rows))
	}
	for _, row := range recorder.rows {
		if row.status != store.StatusFoundNotCopied || row.n != 0 {
			t.Errorf("unexpected audit row %+v", row)
		}
	}
	if recorder.rows[0].path != "/home/poliops/cr/cr-cope.csv" {
		t.Errorf("audit path = %q", recorder.rows[0].path)
	}

	// wc -l only runs for files ls found.
	if got := shell.ran("wc -l '/home/poliops/cr/cr-wpr.csv'"); len(got) != 0 {
		t.Errorf("wc ran for missing file: %v", got)
	}
}

func TestAvailableNonEmptyFiles_Errors(t *testing.T) {
	cfg := testConfig(t)
	specs := NameProspectiveFiles(cfg, catalog.Default().CheckCompanies, runTime)

	shell := &fakeShell{failOn: "ls '/home/poliops/cr/cr-afl.csv'"}
	if _, _, err := AvailableNonEmptyFiles(context.Background(), shell, specs, &fakeRecorder{}, zaptest.NewLogger(t)); !errors.Is(err, remote.ErrNotConnected) {
		t.Errorf("error = %v, want ErrNotConnected", err)
	}

	shell = &fakeShell{results: map[string]*remote.Result{
		"ls '/home/poliops/cr/cr-afl.csv'":    {Stdout: []string{"cr-afl.csv"}},
		"wc -l '/home/poliops/cr/cr-afl.csv'": {Stdout: []string{"1 cr-afl.csv"}},
	}}
	recErr := errors.New("audit database unavailable")
	if _, _, err := AvailableNonEmptyFiles(context.Background(), shell, specs, &fakeRecorder{err: recErr}, zaptest.NewLogger(t)); !errors.Is(err, recErr) {
		t.Errorf("error = %v, want %v", err, recErr)
	}
}

func TestCopyFilesToHost(t *testing.T) {
	cfg := testConfig(t)
	specs := NameProspectiveFiles(cfg, catalog.Default().CheckCompanies, runTime)

	shell := &fakeShell{streams: map[string]string{
		"cat '/home/poliops/cr/cr-afl.csv'": "FCC,Project Code,Notes\nA1,P200,\"has\ttab\"\nA2,P300,ok\n",
	}}
	recorder := &fakeRecorder{}

	copied, err := CopyFilesToHost(context.Background(), shell, specs[:2], catalog.Default().FieldMappings, recorder, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("CopyFilesToHost failed: %v", err)
	}

	if len(copied) != 1 || copied[0].Company != "AFLCIO" {
		t.Fatalf("copied = %+v, want only AFLCIO", copied)
	}

	got, err := os.ReadFile(specs[0].LocalPath)
	if err != nil {
		t.Fatalf("staged file missing: %v", err)
	}
	want := "LM2\tPROJECTS\tNotes\nA1\tP200\thas tab\nA2\tP300\tok\n"
	if string(got) != want {
		t.Errorf("staged content = %q, want %q", got, want)
	}

	if _, err := os.Stat(specs[1].LocalPath); !os.IsNotExist(err) {
		t.Errorf("failed fetch left a staged file behind: %v", err)
	}

	if len(recorder.rows) != 1 || recorder.rows[0] != (auditRow{"/home/poliops/cr/cr-afl.csv", 2, store.StatusCopied}) {
		t.Errorf("audit rows = %+v", recorder.rows)
	}
}

func TestCopyFilesToShare(t *testing.T) {
	cfg := testConfig(t)
	specs := NameProspectiveFiles(cfg, catalog.Default().CheckCompanies, runTime)[:1]

	if err := os.MkdirAll(filepath.Dir(specs[0].LocalPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(specs[0].LocalPath, []byte("LM2\n1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFilesToShare(specs, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("CopyFilesToShare failed: %v", err)
	}
	got, err := os.ReadFile(specs[0].SharePath)
	if err != nil {
		t.Fatalf("share file missing: %v", err)
	}
	if string(got) != "LM2\n1\n" {
		t.Errorf("share content = %q", got)
	}

	missing := NameProspectiveFiles(cfg, catalog.Default().CheckCompanies, runTime)[1:2]
	if err := CopyFilesToShare(missing, zaptest.NewLogger(t)); err == nil {
		t.Error("expected error for missing staged file")
	}
}

func TestMoveRemoteFilesAside(t *testing.T) {
	cfg := testConfig(t)
	specs := NameProspectiveFiles(cfg, catalog.Default().CheckCompanies, runTime)

	shell := &fakeShell{results: map[string]*remote.Result{
		"mv '/home/poliops/cr/cr-afl.csv' '/home/poliops/cr/old/cr-afl.csv'": {},
	}}

	if err := MoveRemoteFilesAside(context.Background(), shell, specs, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("MoveRemoteFilesAside failed: %v", err)
	}

	moves := shell.ran("mv ")
	if len(moves) != 3 {
		t.Fatalf("ran %d moves, want 3 despite failures: %v", len(moves), moves)
	}
	if moves[2] != "mv '/home/poliops/cr/cr-wpr.csv' '/home/poliops/cr/old/cr-wpr.csv'" {
		t.Errorf("moves[2] = %q", moves[2])
	}
}

func newRunShell() *fakeShell {
	return &fakeShell{
		results: map[string]*remote.Result{
			"ls '/home/poliops/cr/cr-afl.csv'":    {Stdout: []string{"/home/poliops/cr/cr-afl.csv"}},
			"wc -l '/home/poliops/cr/cr-afl.csv'": {Stdout: []string{"3 /home/poliops/cr/cr-afl.csv"}},
			"ls '/home/poliops/cr/cr-cope.csv'":   {Stdout: []string{"/home/poliops/cr/cr-cope.csv"}},
			"wc -l '/home/poliops/cr/cr-cope.csv'": {Stdout: []string{"1 /home/poliops/cr/cr-cope.csv"}},
		},
		streams: map[string]string{
			"cat '/home/poliops/cr/cr-afl.csv'": "FCC,Amount\nA1,10.00\nA2,20.00\n",
		},
	}
}

func TestTransfer_Run(t *testing.T) {
	cfg := testConfig(t)
	shell := newRunShell()
	recorder := &fakeRecorder{}
	archiver := &fakeArchiver{}

	tr := NewTransfer(cfg, catalog.Default(), shell, recorder, archiver, zaptest.NewLogger(t))
	tr.now = func() time.Time { return runTime }

	summary, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := Summary{Prospective: 3, Copied: 1, Empty: 1, Moved: 2}
	if *summary != want {
		t.Errorf("summary = %+v, want %+v", *summary, want)
	}

	share := filepath.Join(cfg.DestinationDirectory, "AFLCIO", "20240307-1415.txt")
	got, err := os.ReadFile(share)
	if err != nil {
		t.Fatalf("share file missing: %v", err)
	}
	if string(got) != "LM2\tAmount\nA1\t10.00\nA2\t20.00\n" {
		t.Errorf("share content = %q", got)
	}

	wantAudit := []auditRow{
		{"/home/poliops/cr/cr-cope.csv", 0, store.StatusFoundNotCopied},
		{"/home/poliops/cr/cr-afl.csv", 2, store.StatusCopied},
	}
	if len(recorder.rows) != len(wantAudit) {
		t.Fatalf("audit rows = %+v", recorder.rows)
	}
	for i := range wantAudit {
		if recorder.rows[i] != wantAudit[i] {
			t.Errorf("audit[%d] = %+v, want %+v", i, recorder.rows[i], wantAudit[i])
		}
	}

	moves := shell.ran("mv ")
	wantMoves := []string{
		"mv '/home/poliops/cr/cr-afl.csv' '/home/poliops/cr/old/cr-afl.csv'",
		"mv '/home/poliops/cr/cr-cope.csv' '/home/poliops/cr/old/cr-cope.csv'",
	}
	if strings.Join(moves, "\n") != strings.Join(wantMoves, "\n") {
		t.Errorf("moves = %v, want %v", moves, wantMoves)
	}

	if len(archiver.paths) != 1 || archiver.paths[0] != filepath.Join(cfg.TempDirectory, "AFLCIO", "20240307-1415.txt") {
		t.Errorf("archived = %v", archiver.paths)
	}
	if len(archiver.names) != 1 || archiver.names[0] != "AFLCIO/20240307-1415.txt" {
		t.Errorf("archive names = %v", archiver.names)
	}
}

func TestTransfer_RunArchivesEachCompanySeparately(t *testing.T) {
	cfg := testConfig(t)
	shell := newRunShell()
	shell.results["wc -l '/home/poliops/cr/cr-cope.csv'"] = &remote.Result{Stdout: []string{"2 /home/poliops/cr/cr-cope.csv"}}
	shell.streams["cat '/home/poliops/cr/cr-cope.csv'"] = "FCC,Amount\nC1,5.00\n"
	archiver := &fakeArchiver{}

	tr := NewTransfer(cfg, catalog.Default(), shell, &fakeRecorder{}, archiver, zaptest.NewLogger(t))
	tr.now = func() time.Time { return runTime }

	summary, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Copied != 2 {
		t.Fatalf("copied = %d, want 2", summary.Copied)
	}

	want := []string{"AFLCIO/20240307-1415.txt", "COPE/20240307-1415.txt"}
	if strings.Join(archiver.names, ",") != strings.Join(want, ",") {
		t.Errorf("archive names = %v, want %v", archiver.names, want)
	}
	if filepath.Base(archiver.paths[0]) != filepath.Base(archiver.paths[1]) {
		t.Errorf("staged files should share a name: %v", archiver.paths)
	}
}

func TestArchiveName(t *testing.T) {
	spec := FileSpec{Company: "WPR", LocalPath: filepath.Join("/var/tmp/checks", "WPR", "20240307-1415.txt")}
	if got := ArchiveName(spec); got != "WPR/20240307-1415.txt" {
		t.Errorf("ArchiveName() = %q", got)
	}
}

func TestTransfer_RunMoveAll(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remote.MoveAll = true
	shell := newRunShell()

	tr := NewTransfer(cfg, catalog.Default(), shell, &fakeRecorder{}, nil, zaptest.NewLogger(t))
	tr.now = func() time.Time { return runTime }

	summary, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Moved != 3 || len(shell.ran("mv ")) != 3 {
		t.Errorf("moved %d (%d commands), want 3", summary.Moved, len(shell.ran("mv ")))
	}
}

func TestTransfer_RunNothingFound(t *testing.T) {
	cfg := testConfig(t)
	shell := &fakeShell{}
	archiver := &fakeArchiver{}

	tr := NewTransfer(cfg, catalog.Default(), shell, &fakeRecorder{}, archiver, zaptest.NewLogger(t))
	summary, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Copied != 0 || summary.Moved != 0 {
		t.Errorf("summary = %+v", *summary)
	}
	if got := shell.ran("cat "); len(got) != 0 {
		t.Errorf("cat ran with nothing wanted: %v", got)
	}
	if len(archiver.paths) != 0 {
		t.Errorf("archived %v", archiver.paths)
	}
}

func TestTransfer_ArchiveFailureIsNotFatal(t *testing.T) {
	cfg := testConfig(t)
	tr := NewTransfer(cfg, catalog.Default(), newRunShell(), &fakeRecorder{}, &fakeArchiver{err: errors.New("access denied")}, zaptest.NewLogger(t))
	tr.now = func() time.Time { return runTime }

	summary, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Moved != 2 {
		t.Errorf("moved = %d, want 2", summary.Moved)
	}
}
