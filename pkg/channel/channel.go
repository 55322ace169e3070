// Package channel splits packed logic-analyzer samples into per-channel
// bit sequences.
package channel

// NumChannels is the number of digital inputs packed in one sample byte.
const NumChannels = 8

// ChannelSet holds one sequence per channel. Each byte of a sequence is a
// single sample and is either 0 or 1; there is no bit packing.
type ChannelSet [NumChannels][]byte

// Demux expands payload into NumChannels sequences, where bit c of
// payload[s] becomes cs[c][s]. The returned sequences are freshly allocated.
func Demux(payload []byte) ChannelSet {
	var cs ChannelSet
	for c := range cs {
		cs[c] = make([]byte, len(payload))
	}
	for s, v := range payload {
		for c := 0; c < NumChannels; c++ {
			cs[c][s] = (v >> c) & 1
		}
	}
	return cs
}

// Len returns the number of samples per channel.
func (cs ChannelSet) Len() int {
	return len(cs[0])
}

// Mux packs the channels back into one byte per sample. It is the inverse of Demux.
func (cs ChannelSet) Mux() []byte {
	out := make([]byte, cs.Len())
	for c := 0; c < NumChannels; c++ {
		for s, bit := range cs[c] {
			out[s] |= (bit & 1) << c
		}
	}
	return out
}

// Edges returns the sample indices at which channel c changes level.
func (cs ChannelSet) Edges(c int) []int {
	var ret []int
	seq := cs[c]
	for s := 1; s < len(seq); s++ {
		if seq[s] != seq[s-1] {
			ret = append(ret, s)
		}
	}
	return ret
}
