package executor

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/seasync/seasync/model"
	"github.com/seasync/seasync/remote"
)

// fakeServer plays a minimal Seafile server: it serves download/upload
// links that point back at itself, and records mkdir/delete calls.
type fakeServer struct {
	t        *testing.T
	mux      *http.ServeMux
	srv      *httptest.Server
	mkdirs   []string
	deletes  []string
	fileBody string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{t: t, mux: http.NewServeMux(), fileBody: "remote content"}
	fs.srv = httptest.NewServer(fs.mux)
	t.Cleanup(fs.srv.Close)

	fs.mux.HandleFunc("/api2/repos/lib1/file/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fmt.Fprintf(w, `"%s/download"`, fs.srv.URL)
		case http.MethodDelete:
			fs.deletes = append(fs.deletes, r.URL.Query().Get("p"))
		}
	})
	fs.mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fs.fileBody)
	})
	fs.mux.HandleFunc("/api2/repos/lib1/upload-link/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `"%s/upload"`, fs.srv.URL)
	})
	fs.mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	fs.mux.HandleFunc("/api2/repos/lib1/dir/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			fs.mkdirs = append(fs.mkdirs, r.URL.Query().Get("p"))
			w.WriteHeader(http.StatusCreated)
		case http.MethodDelete:
			fs.deletes = append(fs.deletes, "dir:"+r.URL.Query().Get("p"))
		}
	})

	return fs
}

func newTestExecutor(t *testing.T, fs *fakeServer) (*Executor, string) {
	t.Helper()
	root := t.TempDir()
	client := remote.NewClient(fs.srv.URL, zerolog.Nop())
	client.SetToken("tok")
	return New(client, "lib1", root, zerolog.Nop()), root
}

func TestExecutorDownloadWritesFile(t *testing.T) {
	fs := newFakeServer(t)
	exec, root := newTestExecutor(t, fs)

	action := model.SyncAction{Kind: model.ActionDownload, RemotePath: "/a.txt", LocalPath: "/a.txt"}
	if err := exec.Execute(action); err != nil {
		t.Fatalf("Execute(download): %v", err)
	}

	content, err := os.ReadFile(filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(content) != fs.fileBody {
		t.Errorf("expected %q, got %q", fs.fileBody, content)
	}
}

func TestExecutorCreateDirectory(t *testing.T) {
	fs := newFakeServer(t)
	exec, root := newTestExecutor(t, fs)

	action := model.SyncAction{Kind: model.ActionCreateDirectory, LocalPath: "/docs/sub"}
	if err := exec.Execute(action); err != nil {
		t.Fatalf("Execute(createDirectory): %v", err)
	}

	info, err := os.Stat(filepath.Join(root, "docs", "sub"))
	if err != nil || !info.IsDir() {
		t.Fatalf("expected docs/sub to be a directory, err=%v", err)
	}
}

func TestExecutorUploadSendsFile(t *testing.T) {
	fs := newFakeServer(t)
	exec, root := newTestExecutor(t, fs)

	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("local content"), 0o644); err != nil {
		t.Fatalf("writing local file: %v", err)
	}

	action := model.SyncAction{Kind: model.ActionUpload, LocalPath: "/a.txt", RemotePath: "/a.txt"}
	if err := exec.Execute(action); err != nil {
		t.Fatalf("Execute(upload): %v", err)
	}
}

func TestExecutorDeleteLocalRemovesFile(t *testing.T) {
	fs := newFakeServer(t)
	exec, root := newTestExecutor(t, fs)

	path := filepath.Join(root, "a.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("writing local file: %v", err)
	}

	action := model.SyncAction{Kind: model.ActionDeleteLocal, LocalPath: "/a.txt"}
	if err := exec.Execute(action); err != nil {
		t.Fatalf("Execute(deleteLocal): %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected /a.txt to be removed")
	}
}

func TestExecutorDeleteLocalMissingFileIsNotAnError(t *testing.T) {
	fs := newFakeServer(t)
	exec, _ := newTestExecutor(t, fs)

	action := model.SyncAction{Kind: model.ActionDeleteLocal, LocalPath: "/never-existed.txt"}
	if err := exec.Execute(action); err != nil {
		t.Errorf("expected deleting a missing local file to succeed silently, got %v", err)
	}
}

func TestExecutorDeleteRemoteFile(t *testing.T) {
	fs := newFakeServer(t)
	exec, _ := newTestExecutor(t, fs)

	action := model.SyncAction{Kind: model.ActionDeleteRemote, RemotePath: "/a.txt"}
	if err := exec.Execute(action); err != nil {
		t.Fatalf("Execute(deleteRemote): %v", err)
	}
	if len(fs.deletes) != 1 || fs.deletes[0] != "/a.txt" {
		t.Errorf("expected delete request for /a.txt, got %+v", fs.deletes)
	}
}

func TestExecutorDeleteRemoteDirectory(t *testing.T) {
	fs := newFakeServer(t)
	exec, _ := newTestExecutor(t, fs)

	action := model.SyncAction{Kind: model.ActionDeleteRemote, RemotePath: "/docs", IsDir: true}
	if err := exec.Execute(action); err != nil {
		t.Fatalf("Execute(deleteRemote dir): %v", err)
	}
	if len(fs.deletes) != 1 || !strings.HasPrefix(fs.deletes[0], "dir:") {
		t.Errorf("expected a directory delete request, got %+v", fs.deletes)
	}
}
