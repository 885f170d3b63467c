package arcade

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

var (
	gamePrefix        = []byte("arcade/game/")
	gameIndexKey      = []byte("arcade/game/index")
	positionPrefix    = []byte("arcade/position/")
	adminConfigKey    = []byte("arcade/admin/config")
	usedRequestPrefix = []byte("arcade/request/used/")
)

func gameKey(id uint64) []byte {
	buf := make([]byte, len(gamePrefix)+8)
	copy(buf, gamePrefix)
	binary.BigEndian.PutUint64(buf[len(gamePrefix):], id)
	return buf
}

func positionKey(gameID uint64, user common.Address) []byte {
	buf := make([]byte, len(positionPrefix)+8+common.AddressLength)
	copy(buf, positionPrefix)
	binary.BigEndian.PutUint64(buf[len(positionPrefix):], gameID)
	copy(buf[len(positionPrefix)+8:], user.Bytes())
	return buf
}

func usedRequestKey(digest common.Hash) []byte {
	buf := make([]byte, len(usedRequestPrefix)+common.HashLength)
	copy(buf, usedRequestPrefix)
	copy(buf[len(usedRequestPrefix):], digest.Bytes())
	return buf
}
