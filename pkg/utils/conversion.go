package utils

// ConvertToFloat32 narrows a float64 vector to float32, the element
// type the vector store works with.
func ConvertToFloat32(f []float64) []float32 {
	out := make([]float32, len(f))
	for i, v := range f {
		out[i] = float32(v)
	}
	return out
}
