package audio

// loopTo repeats the interleaved frames in src until exactly target frames
// are filled. src must hold at least one frame.
func loopTo(src []int, channels, target int) []int {
	out := make([]int, target*channels)
	for filled := 0; filled < len(out); {
		filled += copy(out[filled:], src)
	}
	return out
}

// plan returns the frame ranges [start, end) of the segments to emit for a
// recording of total frames, and whether each must be looped to target.
//
//   - total < target: the whole clip, looped.
//   - otherwise floor(total/target) full windows, plus the remainder
//     looped on its own when non-empty.
func plan(total, target int) []frameRange {
	if total <= 0 || target <= 0 {
		return nil
	}
	if total < target {
		return []frameRange{{start: 0, end: total, loop: true}}
	}

	full := total / target
	ranges := make([]frameRange, 0, full+1)
	for i := range full {
		ranges = append(ranges, frameRange{start: i * target, end: (i + 1) * target})
	}
	if rem := total % target; rem > 0 {
		ranges = append(ranges, frameRange{start: total - rem, end: total, loop: true})
	}
	return ranges
}

type frameRange struct {
	start, end int
	loop       bool
}
