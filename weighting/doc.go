// Package weighting provides robust-statistics kernels for down-weighting
// outlier visibilities during iterative solves.
//
// A kernel maps a normalised residual magnitude (residual scaled by the
// robust spread estimate of the previous iteration) to a multiplicative
// weight factor in [0,1]. The exact robust formula is deliberately pluggable;
// kernels here cover the common choices. Down-weighting never sets the
// permanent data flag: a datum's effective weight may reach zero for an
// iteration while the flag stays clear.
package weighting
