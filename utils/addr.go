package utils

// ExplorerURL returns the Solana explorer link for a transaction signature.
func ExplorerURL(signature, cluster string) string {
	return "https://explorer.solana.com/tx/" + signature + "?cluster=" + cluster
}

// ShortenAddress renders a base58 address as "GZNk...BJvx" for logs and
// notifications.
func ShortenAddress(addr string) string {
	if len(addr) <= 8 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}
