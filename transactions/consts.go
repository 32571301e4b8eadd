package transactions

// TxVersion is the nVersion every Revault transaction is built with.
const TxVersion = int32(2)

// UnvaultCPFPValue is the fixed value, in satoshis, of every Unvault transaction's CPFP
// output.
const UnvaultCPFPValue = uint64(30000)

// UnvaultTxFeerate is the fixed feerate, in sat per weight unit, an Unvault transaction
// pays.
const UnvaultTxFeerate = uint64(6)

// CancelTxFeerate is the fixed feerate, in sat per weight unit, a Cancel transaction pays.
const CancelTxFeerate = uint64(22)

// EmerTxFeerate is the fixed feerate, in sat per weight unit, an Emergency or
// UnvaultEmergency transaction pays.
const EmerTxFeerate = uint64(75)

// DustLimit is the minimum value, in satoshis, of the Unvault, revocation, and Spend
// destination/change outputs this library builds; CPFP outputs and CPFP change are not
// held to it.
const DustLimit = uint64(200000)

// InsaneFees is a sanity ceiling on any single transaction's absolute fee: nobody wants
// to pay this many sats because of a bug.
const InsaneFees = uint64(20000000)

// MaxStandardTxWeight is Bitcoin Core's standardness weight ceiling a constructed
// transaction must stay under to relay.
const MaxStandardTxWeight = uint32(400000)

// CPFPMinChange is the minimum leftover value, in satoshis, a CPFP transaction will
// keep as a change output rather than donating entirely to fees.
const CPFPMinChange = uint64(10000)
