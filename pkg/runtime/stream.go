package runtime

import (
	"bufio"
	"io"
	"sync"
)

// StreamOutput reads stdout and stderr concurrently, line by line,
// invoking onLine for each as it arrives and also collecting every line
// into the returned slice, uncapped (BuildErrorOutput takes the tail for a
// build-failure message). Lines from the two streams
// interleave in whatever order the OS delivers them; this intentionally
// does not try to reconstruct a single ordered transcript.
func StreamOutput(stdout, stderr io.Reader, onLine func(line string)) []string {
	var mu sync.Mutex
	var all []string

	collect := func(r io.Reader) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			all = append(all, line)
			mu.Unlock()
			if onLine != nil {
				onLine(line)
			}
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); collect(stdout) }()
	go func() { defer wg.Done(); collect(stderr) }()
	wg.Wait()

	return all
}

// BuildErrorOutput returns the last BuildErrorTailLines lines of combined
// stdout+stderr, for surfacing in an image build failure.
func BuildErrorOutput(stdout, stderr []string) string {
	all := append(append([]string{}, stdout...), stderr...)
	if len(all) <= BuildErrorTailLines {
		return joinLines(all)
	}
	return joinLines(all[len(all)-BuildErrorTailLines:])
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
