package utils

import (
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

var polyormSourceDir string

func init() {
	_, file, _, _ := runtime.Caller(0)
	// compatible solution to get polyorm source directory with various operating systems
	polyormSourceDir = sourceDir(file)
}

func sourceDir(file string) string {
	dir := filepath.Dir(file)
	dir = filepath.Dir(dir)
	return filepath.ToSlash(dir) + "/"
}

// FileWithLineNum return the file name and line number of the first caller outside polyorm
func FileWithLineNum() string {
	// the second caller usually from polyorm internal, so set i start from 2
	for i := 2; i < 15; i++ {
		_, file, line, ok := runtime.Caller(i)
		if ok && (!strings.HasPrefix(file, polyormSourceDir) || strings.HasSuffix(file, "_test.go")) {
			return file + ":" + strconv.FormatInt(int64(line), 10)
		}
	}

	return ""
}

var identifierRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsValidIdentifier reports whether name can be used unquoted as a table or column name
func IsValidIdentifier(name string) bool {
	return identifierRegexp.MatchString(name)
}

// CheckTruth check string true or not
func CheckTruth(vals ...string) bool {
	for _, val := range vals {
		if val != "" && !strings.EqualFold(val, "false") {
			return true
		}
	}
	return false
}

// SplitQualified splits "ns.sub.Name" into ("ns.sub", "Name")
func SplitQualified(key string) (namespace, name string) {
	if idx := strings.LastIndexByte(key, '.'); idx >= 0 {
		return key[:idx], key[idx+1:]
	}
	return "", key
}
