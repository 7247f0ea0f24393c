// Package vector defines the vector element types stored by vec0 tables and
// their bit-exact encodings:
//   - float32: little-endian IEEE 754, 4 bytes per element, no header
//   - int8: one signed byte per element followed by an 8 byte header holding
//     the float32 scale and offset used to dequantize (x = q*scale + offset)
//   - bit: ceil(dims/8) bytes, element i is bit i%8 (LSB first) of byte i/8
//
// It also provides the JSON text form, quantization and vector arithmetic
// used by the SQL scalar functions.
package vector
