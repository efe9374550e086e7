package domain

type Channel string

const (
	ChannelNormal   Channel = "normal"
	ChannelDiscount Channel = "discount"
	ChannelClubcard Channel = "clubcard"
)

// AttrClubcardPricing is the promotion attribute marking the
// loyalty-program discount.
const AttrClubcardPricing = "CLUBCARD_PRICING"

func Channels() []Channel {
	return []Channel{ChannelNormal, ChannelDiscount, ChannelClubcard}
}

func (c Channel) Valid() bool {
	switch c {
	case ChannelNormal, ChannelDiscount, ChannelClubcard:
		return true
	}
	return false
}
