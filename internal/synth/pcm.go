package synth

// FloatsToPCM16 converts float32 samples to signed 16-bit little-endian PCM,
// clamping to [-1, 1].
func FloatsToPCM16(samples []float32) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, sample := range samples {
		if sample > 1.0 {
			sample = 1.0
		} else if sample < -1.0 {
			sample = -1.0
		}
		val := int16(sample * 32767)
		pcm[i*2] = byte(val)
		pcm[i*2+1] = byte(val >> 8)
	}
	return pcm
}

// splitPCM slices pcm into chunks of at most chunkBytes, aligned to whole
// 16-bit samples.
func splitPCM(pcm []byte, chunkBytes int) [][]byte {
	if chunkBytes < 2 {
		chunkBytes = 2
	}
	chunkBytes -= chunkBytes % 2

	var chunks [][]byte
	for len(pcm) > 0 {
		n := chunkBytes
		if n > len(pcm) {
			n = len(pcm)
		}
		chunks = append(chunks, pcm[:n])
		pcm = pcm[n:]
	}
	return chunks
}
