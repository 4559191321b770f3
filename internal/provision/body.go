package provision

import (
	"strconv"

	"hivemind/internal/task"
	"hivemind/internal/task/scheduler"
	"hivemind/internal/world"
)

// Body returns the part list for a worker able to serve every task in group:
// one movement part per distinct capability, followed by the capabilities.
func Body(group []scheduler.UnmetTask) []world.Capability {
	sets := make([][]world.Capability, 0, len(group))
	for _, t := range group {
		sets = append(sets, t.Requires)
	}
	caps := task.UnionCapabilities(sets...)

	work := caps[:0:0]
	for _, c := range caps {
		if c != world.Move {
			work = append(work, c)
		}
	}
	if len(work) == 0 {
		return []world.Capability{world.Move}
	}
	body := make([]world.Capability, 0, 2*len(work))
	for range work {
		body = append(body, world.Move)
	}
	return append(body, work...)
}

// groups splits tasks into consecutive chunks of size n; the last chunk may
// be shorter.
func groups(tasks []scheduler.UnmetTask, n int) [][]scheduler.UnmetTask {
	if n <= 0 {
		n = 1
	}
	out := make([][]scheduler.UnmetTask, 0, (len(tasks)+n-1)/n)
	for i := 0; i < len(tasks); i += n {
		out = append(out, tasks[i:min(i+n, len(tasks))])
	}
	return out
}

var defaultNames = []string{
	"Abbott", "Brenner", "Calloway", "Draper", "Ellison", "Fairbanks",
	"Garrity", "Holloway", "Ingram", "Jessup", "Kessler", "Lindqvist",
}

// ordinalName renders the n-th holder of base: "Gray", "Gray the 2nd", ...
func ordinalName(base string, n int) string {
	if n <= 1 {
		return base
	}
	return base + " the " + ordinal(n)
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}
