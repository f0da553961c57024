// Package pools provides buffer pooling for the journal's encode path:
//
//   - BytePool: size-class pooling for object encode buffers
//   - BufferBuilder: little-endian object encoding on a pooled buffer
package pools
