package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Tutortoise/mask-stream/logging"
	ort "github.com/yalue/onnxruntime_go"
)

// LibraryEnv overrides the onnxruntime shared library location.
const LibraryEnv = "ONNXRUNTIME_LIB"

// libraryNames lists the shared library file names to look for on this OS.
func libraryNames() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"libonnxruntime.dylib", "libonnxruntime.1.20.0.dylib"}
	case "windows":
		return []string{"onnxruntime.dll"}
	default:
		return []string{"libonnxruntime.so", "libonnxruntime.so.1", "libonnxruntime.so.1.20.0"}
	}
}

func librarySearchDirs() []string {
	dirs := []string{"lib", "."}
	if exe, err := os.Executable(); err == nil {
		base := filepath.Dir(exe)
		dirs = append(dirs, filepath.Join(base, "lib"), base)
	}
	switch runtime.GOOS {
	case "darwin":
		dirs = append(dirs, "/opt/homebrew/lib", "/usr/local/lib")
	case "linux":
		dirs = append(dirs, "/usr/local/lib", "/usr/lib", "/usr/lib/x86_64-linux-gnu", "/usr/lib/aarch64-linux-gnu")
	}
	return dirs
}

// resolveLibrary picks the onnxruntime library: the configured path, then
// $ONNXRUNTIME_LIB, then the first known file name found in the search dirs.
func resolveLibrary(configured string) (string, error) {
	for _, explicit := range []string{configured, os.Getenv(LibraryEnv)} {
		if explicit == "" {
			continue
		}
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("onnxruntime library %s: %w", explicit, err)
		}
		return explicit, nil
	}

	for _, dir := range librarySearchDirs() {
		for _, name := range libraryNames() {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}
	}

	return "", errors.New("onnxruntime library not found, set model.library_path or " + LibraryEnv)
}

// initRuntime loads onnxruntime and returns its teardown.
func initRuntime(libraryPath string) (func(), error) {
	libPath, err := resolveLibrary(libraryPath)
	if err != nil {
		return nil, err
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	logging.Info("onnxruntime initialized", "library", libPath)

	return func() {
		if err := ort.DestroyEnvironment(); err != nil {
			logging.Warn("destroy onnxruntime environment", "error", err)
		}
	}, nil
}
