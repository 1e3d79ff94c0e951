package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTemperatureForScore(t *testing.T) {
	assert.Equal(t, TemperatureCold, TemperatureForScore(0))
	assert.Equal(t, TemperatureCold, TemperatureForScore(19))
	assert.Equal(t, TemperatureWarm, TemperatureForScore(20))
	assert.Equal(t, TemperatureWarm, TemperatureForScore(49))
	assert.Equal(t, TemperatureHot, TemperatureForScore(50))
	assert.Equal(t, TemperatureHot, TemperatureForScore(100))
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0, ClampScore(-5))
	assert.Equal(t, 100, ClampScore(150))
	assert.Equal(t, 42, ClampScore(42))
}

func TestContact_Eligible(t *testing.T) {
	base := Contact{Status: ContactStatusSubscribed}
	assert.True(t, base.Eligible())

	unsub := base
	unsub.Unsubscribed = true
	assert.False(t, unsub.Eligible())

	bounced := base
	bounced.Bounced = true
	assert.False(t, bounced.Eligible())

	spam := base
	spam.SpamComplaint = true
	assert.False(t, spam.Eligible())

	pending := Contact{Status: ContactStatusPending}
	assert.False(t, pending.Eligible())
}

func TestContact_TZDefaultsToUTC(t *testing.T) {
	c := Contact{}
	assert.Equal(t, "UTC", c.TZ())

	c.Timezone = "America/New_York"
	assert.Equal(t, "America/New_York", c.TZ())
}

func TestContact_HasTagAndHasList(t *testing.T) {
	c := Contact{Tags: []string{"VIP", "Newsletter"}, Lists: []string{"product-updates"}}
	assert.True(t, c.HasTag("vip"))
	assert.True(t, c.HasTag("news"))
	assert.False(t, c.HasTag("enterprise"))
	assert.True(t, c.HasList("product-updates"))
	assert.True(t, c.HasTag(""))
}
