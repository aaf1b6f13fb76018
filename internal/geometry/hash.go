package geometry

import (
	"encoding/binary"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Hash 计算向量规范化稠密形式的内容哈希。同一逻辑向量的稀疏表示与
// 稠密表示会得到完全相同的哈希；仅在补零类别上有差异的两个向量，其
// 规范形式不同时哈希才不同。
func Hash(v Vector) common.Hash {
	buf := make([]byte, Dimension*8)
	for i := 0; i < Dimension; i++ {
		binary.BigEndian.PutUint64(buf[i*8:], math.Float64bits(v[i]))
	}
	return crypto.Keccak256Hash(buf)
}
