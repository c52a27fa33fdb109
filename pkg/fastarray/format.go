package fastarray

// On-disk layout constants. All multi-byte integers are little-endian.
//
// Index stream: a single 8-byte page (page-0.dat only) holding HeadIndex.
//
// Metadata stream: fixed-size 32-byte slots, one per record id, packed
// meta_records_per_page to a page:
//
//	offset 0..8   data_page_index  uint64
//	offset 8..12  data_offset      uint32
//	offset 12..16 data_length      uint32
//	offset 16..24 enqueue_time_ms  uint64
//	offset 24..32 reserved, always zero
//
// Data stream: raw payload bytes placed at the recorded offset. A record
// never straddles two data pages.
const (
	indexPageSize = 8

	metaSlotSize        = 32
	metaSlotOffPageIdx  = 0
	metaSlotOffDataOff  = 8
	metaSlotOffDataLen  = 12
	metaSlotOffEnqueued = 16

	// DefaultDataPageSize is 128 MiB, the spec's documented default.
	DefaultDataPageSize = 1 << 27
	// MinDataPageSize is 32 MiB, the spec's documented floor.
	MinDataPageSize = 1 << 25
	// DefaultMetaPageSize is 32 KiB, the spec's documented default.
	DefaultMetaPageSize = 1 << 15
	// DefaultCacheTTLMillis is the spec's documented default page cache TTL.
	DefaultCacheTTLMillis = 10_000
)

type metaSlot struct {
	dataPageIndex uint64
	dataOffset    uint32
	dataLength    uint32
	enqueuedAtMs  uint64
}
