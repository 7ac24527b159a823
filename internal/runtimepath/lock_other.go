//go:build !unix

package runtimepath

import "os"

// Advisory locking is not available; every Acquire succeeds.
func tryLock(*os.File) error { return nil }

func unlock(*os.File) error { return nil }
