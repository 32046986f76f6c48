package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gridloom/lattice/internal/api/mcp"
)

// maxReadBytes bounds read_file so a tool call cannot balloon a response.
const maxReadBytes = 1 << 20

// FSTools exposes plain filesystem operations rooted at a base directory.
// Paths are validated so a tool call cannot escape the root.
type FSTools struct {
	root string
}

// NewFSTools creates the filesystem tool group rooted at root.
func NewFSTools(root string) *FSTools {
	return &FSTools{root: root}
}

// ReadFileArgs are the arguments for read_file.
type ReadFileArgs struct {
	Path string `json:"path"`
}

// ReadFileResult is the result of read_file.
type ReadFileResult struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Size    int64  `json:"size"`
}

// WriteFileArgs are the arguments for write_file.
type WriteFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// WriteFileResult is the result of write_file.
type WriteFileResult struct {
	Path    string `json:"path"`
	Written int    `json:"written"`
}

// ListDirectoryArgs are the arguments for list_directory.
type ListDirectoryArgs struct {
	Path string `json:"path,omitempty"`
}

// DirEntry is one entry of a list_directory result.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// ListDirectoryResult is the result of list_directory.
type ListDirectoryResult struct {
	Path    string     `json:"path"`
	Entries []DirEntry `json:"entries"`
}

// DeleteFileArgs are the arguments for delete_file.
type DeleteFileArgs struct {
	Path string `json:"path"`
}

// DeleteFileResult is the result of delete_file.
type DeleteFileResult struct {
	Path    string `json:"path"`
	Deleted bool   `json:"deleted"`
}

// Register adds the filesystem tool group to the registry.
func (f *FSTools) Register(reg *mcp.Registry) {
	reg.Register(mcp.Descriptor{
		Name:        "read_file",
		Description: "Read a text file under the configured workspace root.",
		InputSchema: objectSchema(map[string]interface{}{
			"path": stringProp("File path relative to the workspace root"),
		}, "path"),
		Handler: f.handleRead,
	})
	reg.Register(mcp.Descriptor{
		Name:        "write_file",
		Description: "Write a text file under the configured workspace root, creating parent directories as needed.",
		InputSchema: objectSchema(map[string]interface{}{
			"path":    stringProp("File path relative to the workspace root"),
			"content": stringProp("File content"),
		}, "path", "content"),
		Handler: f.handleWrite,
	})
	reg.Register(mcp.Descriptor{
		Name:        "list_directory",
		Description: "List a directory under the configured workspace root.",
		InputSchema: objectSchema(map[string]interface{}{
			"path": stringProp("Directory path relative to the workspace root (default: the root)"),
		}),
		Handler: f.handleList,
	})
	reg.Register(mcp.Descriptor{
		Name:        "delete_file",
		Description: "Delete a file under the configured workspace root.",
		InputSchema: objectSchema(map[string]interface{}{
			"path": stringProp("File path relative to the workspace root"),
		}, "path"),
		Handler: f.handleDelete,
	})
}

// resolve joins a relative path onto the root and rejects escapes.
func (f *FSTools) resolve(path string) (string, error) {
	if strings.Contains(path, "\x00") {
		return "", fmt.Errorf("invalid path %q", path)
	}
	full := filepath.Join(f.root, filepath.Clean("/"+path))
	rootAbs, err := filepath.Abs(f.root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root: %w", err)
	}
	fullAbs, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if fullAbs != rootAbs && !strings.HasPrefix(fullAbs, rootAbs+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes the workspace root", path)
	}
	return fullAbs, nil
}

func (f *FSTools) handleRead(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args ReadFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	full, err := f.resolve(args.Path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", args.Path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", args.Path)
	}
	if info.Size() > maxReadBytes {
		return nil, fmt.Errorf("%s is too large (%d bytes)", args.Path, info.Size())
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args.Path, err)
	}
	return &ReadFileResult{Path: args.Path, Content: string(data), Size: info.Size()}, nil
}

func (f *FSTools) handleWrite(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args WriteFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	full, err := f.resolve(args.Path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", args.Path, err)
	}
	if err := os.WriteFile(full, []byte(args.Content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", args.Path, err)
	}
	return &WriteFileResult{Path: args.Path, Written: len(args.Content)}, nil
}

func (f *FSTools) handleList(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args ListDirectoryArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	full, err := f.resolve(args.Path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", args.Path, err)
	}
	result := &ListDirectoryResult{Path: args.Path, Entries: make([]DirEntry, 0, len(entries))}
	for _, e := range entries {
		entry := DirEntry{Name: e.Name(), IsDir: e.IsDir()}
		if info, err := e.Info(); err == nil && !e.IsDir() {
			entry.Size = info.Size()
		}
		result.Entries = append(result.Entries, entry)
	}
	sort.Slice(result.Entries, func(i, j int) bool {
		return result.Entries[i].Name < result.Entries[j].Name
	})
	return result, nil
}

func (f *FSTools) handleDelete(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args DeleteFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	full, err := f.resolve(args.Path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		return &DeleteFileResult{Path: args.Path, Deleted: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", args.Path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", args.Path)
	}
	if err := os.Remove(full); err != nil {
		return nil, fmt.Errorf("failed to delete %s: %w", args.Path, err)
	}
	return &DeleteFileResult{Path: args.Path, Deleted: true}, nil
}
