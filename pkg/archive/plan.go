package archive

type Plan struct {
	Format       Format
	BufferSizeKB int
	Metrics      bool
}
